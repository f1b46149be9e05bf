package classify

import (
	"context"
	"fmt"

	"github.com/yungbote/companysync-backend/internal/platform/openai"
)

// Verdict is the model's answer for one image.
type Verdict struct {
	IsConstruction bool
	// Product is the first extracted product, nil when none was found.
	Product      map[string]any
	InputTokens  int
	OutputTokens int
	Model        string
}

// Classifier labels one image. Implementations must return promptly once ctx is done.
type Classifier interface {
	Classify(ctx context.Context, imageURL string, cc CompanyContext) (Verdict, error)
	Model() string
}

type modelClassifier struct {
	ai     openai.Client
	detail string
}

// NewModelClassifier adapts a structured-output model client into a Classifier.
func NewModelClassifier(ai openai.Client, detail string) Classifier {
	if detail == "" {
		detail = "auto"
	}
	return &modelClassifier{ai: ai, detail: detail}
}

func (c *modelClassifier) Model() string { return c.ai.Model() }

func (c *modelClassifier) Classify(ctx context.Context, imageURL string, cc CompanyContext) (Verdict, error) {
	res, err := c.ai.GenerateJSONWithImages(ctx, systemPrompt, userPrompt(imageURL, cc),
		[]openai.ImageInput{{ImageURL: imageURL, Detail: c.detail}},
		schemaName, productSchema(),
	)
	if err != nil {
		return Verdict{}, fmt.Errorf("classify %s: %w", imageURL, err)
	}
	v := Verdict{
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		Model:        res.Model,
	}
	if v.Model == "" {
		v.Model = c.ai.Model()
	}
	products, _ := res.Object["products"].([]any)
	if len(products) == 0 {
		return v, nil
	}
	first, ok := products[0].(map[string]any)
	if !ok {
		return v, nil
	}
	first["product_image"] = imageURL
	v.IsConstruction = true
	v.Product = first
	return v, nil
}
