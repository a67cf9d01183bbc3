package pipeline

import (
	"context"

	"swap-orchestrator/core/compositor"
	"swap-orchestrator/core/models"
)

// Stage describes one step of the pipeline: the status a session carries
// while the step runs, the artifact kinds it consumes, the kind it
// produces, and whether the remote editor is involved. The orchestrator
// loop is driven by the ordered Stages list; there is no per-stage
// branching anywhere else.
type Stage struct {
	Name   string
	Status models.SessionStatus
	Inputs []models.ArtifactKind
	Output models.ArtifactKind
	Remote bool
	Run    StageFunc
}

// StageFunc produces the stage's output image from its input images.
// Returns the image bytes and their mime type.
type StageFunc func(ctx context.Context, o *Orchestrator, prompts models.Prompts, inputs map[models.ArtifactKind][]byte) ([]byte, string, error)

// Stages is the ordered pipeline: add the person to the background via a
// remote edit, build the reference composite locally, then swap via a
// second remote edit guided by the composite.
//
// The composite stage never sends prompts.Composite to the remote editor;
// the prompt is accepted and recorded but composition is local-only.
var Stages = []Stage{
	{
		Name:   "add_person",
		Status: models.SessionStatusAddingPerson,
		Inputs: []models.ArtifactKind{models.ArtifactKindBackground},
		Output: models.ArtifactKindAddedPerson,
		Remote: true,
		Run: func(ctx context.Context, o *Orchestrator, prompts models.Prompts, inputs map[models.ArtifactKind][]byte) ([]byte, string, error) {
			result, err := o.editor.SubmitEdit(ctx, [][]byte{inputs[models.ArtifactKindBackground]}, prompts.AddPerson)
			if err != nil {
				return nil, "", err
			}
			return result.Image, result.MimeType, nil
		},
	},
	{
		Name:   "composite",
		Status: models.SessionStatusCompositing,
		Inputs: []models.ArtifactKind{models.ArtifactKindAddedPerson, models.ArtifactKindPerson},
		Output: models.ArtifactKindComposite,
		Remote: false,
		Run: func(ctx context.Context, o *Orchestrator, prompts models.Prompts, inputs map[models.ArtifactKind][]byte) ([]byte, string, error) {
			composite, err := compositor.SideBySide(
				inputs[models.ArtifactKindAddedPerson],
				inputs[models.ArtifactKindPerson],
			)
			if err != nil {
				return nil, "", err
			}
			return composite, "image/jpeg", nil
		},
	},
	{
		Name:   "final_swap",
		Status: models.SessionStatusSwapping,
		Inputs: []models.ArtifactKind{models.ArtifactKindComposite},
		Output: models.ArtifactKindFinalSwap,
		Remote: true,
		Run: func(ctx context.Context, o *Orchestrator, prompts models.Prompts, inputs map[models.ArtifactKind][]byte) ([]byte, string, error) {
			result, err := o.editor.SubmitEdit(ctx, [][]byte{inputs[models.ArtifactKindComposite]}, enhanceSwapPrompt(prompts.Swap))
			if err != nil {
				return nil, "", err
			}
			return result.Image, result.MimeType, nil
		},
	},
}

// enhanceSwapPrompt appends layout guidance so the editor knows how the
// composite is structured
func enhanceSwapPrompt(swapPrompt string) string {
	return swapPrompt + " The composite image has two parts: LEFT (scene with person) and RIGHT (person source). " +
		"Transfer the person's appearance from RIGHT to LEFT, keeping the LEFT scene intact. " +
		"Return only the LEFT side result."
}
