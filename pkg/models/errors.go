package models

import "errors"

var (
	ErrUnknownWorkflowType   = errors.New("unknown workflow type")
	ErrUnknownWorkflowStatus = errors.New("unknown workflow status")
	ErrUnknownMetadataColumn = errors.New("unknown metadata column")
)
