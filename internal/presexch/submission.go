package presexch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrSubmissionMismatch is returned when the presented credentials do not
// satisfy every input descriptor.
var ErrSubmissionMismatch = errors.New("credentials do not satisfy presentation definition")

// PresentationSubmission maps input descriptors to credentials inside a presentation.
type PresentationSubmission struct {
	ID            string                         `json:"id"`
	DefinitionID  string                         `json:"definition_id"`
	DescriptorMap []InputDescriptorMappingObject `json:"descriptor_map"`
}

// InputDescriptorMappingObject locates the credential for one descriptor.
type InputDescriptorMappingObject struct {
	ID         string                        `json:"id"`
	Format     string                        `json:"format"`
	Path       string                        `json:"path"`
	PathNested *InputDescriptorMappingObject `json:"path_nested,omitempty"`
}

// PresentedCredential is a credential embedded in a presentation.
type PresentedCredential struct {
	Format   string
	Document Document
}

// BuildSubmission maps every descriptor of the definition to the first
// credential that satisfies it. Credentials are addressed by their index
// in the presentation's verifiableCredential list.
func BuildSubmission(definition *PresentationDefinition, presentationFormat string, credentials []PresentedCredential) (*PresentationSubmission, error) {
	submission := &PresentationSubmission{
		ID:            uuid.NewString(),
		DefinitionID:  definition.ID,
		DescriptorMap: make([]InputDescriptorMappingObject, 0, len(definition.InputDescriptors)),
	}

	for _, descriptor := range definition.InputDescriptors {
		var mapping *InputDescriptorMappingObject
		for i, credential := range credentials {
			match, err := MatchDescriptor(descriptor, credential.Document)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}

			format := credential.Format
			if format == "" {
				format = "jwt_vc"
			}
			mapping = &InputDescriptorMappingObject{
				ID:     descriptor.ID,
				Format: presentationFormat,
				Path:   "$",
				PathNested: &InputDescriptorMappingObject{
					ID:     descriptor.ID,
					Format: format,
					Path:   fmt.Sprintf("$.verifiableCredential[%d]", i),
				},
			}
			break
		}
		if mapping == nil {
			return nil, fmt.Errorf("%w: no credential for input descriptor %q", ErrSubmissionMismatch, descriptor.ID)
		}
		submission.DescriptorMap = append(submission.DescriptorMap, *mapping)
	}

	return submission, nil
}
