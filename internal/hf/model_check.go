package hf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const hubModelURL = "https://huggingface.co/api/models/"

// Pipeline tags that support the text_generation task.
var generationPipelines = map[string]bool{
	"text-generation":      true,
	"text2text-generation": true,
}

// TokenFromEnv resolves the API token from HF_API_TOKEN, falling back to
// HF_TOKEN. Returns an empty string when neither is set.
func TokenFromEnv() string {
	if t := os.Getenv("HF_API_TOKEN"); t != "" {
		return t
	}
	return os.Getenv("HF_TOKEN")
}

// CheckModel verifies against the hub that the model ID exists and is a
// text-generation model.
func CheckModel(ctx context.Context, model, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hubModelURL+model, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("hf: checking model %q on the hub: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hf: model %q is not available on the hub (status %d)", model, resp.StatusCode)
	}

	var info struct {
		PipelineTag string `json:"pipeline_tag"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("hf: decoding hub response for %q: %w", model, err)
	}
	if !generationPipelines[info.PipelineTag] {
		return fmt.Errorf("hf: model %q is a %q model, not a text-generation model", model, info.PipelineTag)
	}
	return nil
}
