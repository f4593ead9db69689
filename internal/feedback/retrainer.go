package feedback

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orion-triage/internal/model"
	"github.com/sells-group/orion-triage/pkg/medgemma"
)

// serviceRetrainer delegates cycles to the classification service's own
// training pipeline.
type serviceRetrainer struct {
	client medgemma.TrainingClient
	model  string
}

// NewServiceRetrainer wraps the service training client as a Retrainer.
func NewServiceRetrainer(client medgemma.TrainingClient, modelName string) Retrainer {
	return &serviceRetrainer{client: client, model: modelName}
}

func (r *serviceRetrainer) Retrain(ctx context.Context, records []model.FeedbackRecord) (*ValidationMetrics, error) {
	cases := make([]medgemma.LabeledCase, len(records))
	for i, fr := range records {
		cases[i] = medgemma.LabeledCase{
			DecisionID:    fr.DecisionID,
			PredictedCode: string(fr.PredictedCode),
			ActualCode:    string(fr.ActualCode),
		}
	}

	resp, err := r.client.Retrain(ctx, medgemma.RetrainRequest{
		Model: r.model,
		Cases: cases,
	})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: retrain")
	}

	return &ValidationMetrics{
		Accuracy:    resp.Accuracy,
		Sensitivity: resp.Sensitivity,
		Specificity: resp.Specificity,
	}, nil
}

func (r *serviceRetrainer) Deploy(ctx context.Context) error {
	return eris.Wrap(r.client.Deploy(ctx), "feedback: deploy candidate")
}

func (r *serviceRetrainer) Discard(ctx context.Context) error {
	return eris.Wrap(r.client.Discard(ctx), "feedback: discard candidate")
}
