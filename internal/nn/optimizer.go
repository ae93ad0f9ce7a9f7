package nn

import (
	G "gorgonia.org/gorgonia"
)

// Adam configures gorgonia's Adam solver. The solver itself is created on
// the first step so one Adam is bound to exactly one model.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	solver *G.AdamSolver
	step   int
}

func NewAdam(lr float64) *Adam {
	return &Adam{LearningRate: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7}
}

// Step applies one update to the nodes from their gradients.
func (a *Adam) Step(nodes G.Nodes) error {
	if a.solver == nil {
		a.solver = G.NewAdamSolver(
			G.WithLearnRate(a.LearningRate),
			G.WithBeta1(a.Beta1),
			G.WithBeta2(a.Beta2),
			G.WithEps(a.Epsilon),
		)
	}
	if err := a.solver.Step(G.NodesToValueGrads(nodes)); err != nil {
		return err
	}
	a.step++
	return nil
}

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int { return a.step }
