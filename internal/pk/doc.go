// Package pk implements the one-compartment tacrolimus disposition model.
//
// It holds the covariate formulas that turn a candidate eta into per-event
// elimination rates and volumes, the in-place synchronization of a dosing
// event list to that eta, and the piecewise-analytic concentration predictor.
//
// Times are hours relative to the next scheduled dose, doses are micrograms
// and concentrations are ug/L. Nothing in this package returns an error:
// degenerate inputs (missing age, non-positive volume) surface as NaN
// concentrations which downstream scoring treats as non-improving.
package pk
