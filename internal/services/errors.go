package services

import "errors"

// Pipeline service errors
var (
	// Ingestion errors
	ErrLeagueRequired       = errors.New("league is required")
	ErrEmptyUpload          = errors.New("upload contains no data")
	ErrReferenceUnavailable = errors.New("reference index unavailable")

	// Collaborator errors
	ErrNoLeaguesFound = errors.New("no leagues found")
)
