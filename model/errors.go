package model

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	ErrMissingArtifact   = xerrors.New("missing artifact")
	ErrShapeMismatch     = xerrors.New("frame shape mismatch")
	ErrLengthMismatch    = xerrors.New("dataset and predictions length mismatch")
	ErrEncodeFailure     = xerrors.New("video encode failure")
	ErrInvalidParameters = xerrors.New("invalid render parameters")
	ErrAnnotation        = xerrors.New("frame annotation failure")
	ErrCancelled         = xerrors.New("render cancelled")
)

// ArtifactError reports an input file that must exist before rendering can start.
// Remedy is the command that regenerates the artifact.
type ArtifactError struct {
	Artifact string
	Path     string
	Remedy   string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s file missing: %s", e.Artifact, e.Path)
}

func (e *ArtifactError) Unwrap() error {
	return ErrMissingArtifact
}
