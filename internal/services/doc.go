// Package services contains the business logic layer. PipelineService runs
// the full ingestion flow for one upload: fetch the reference index for the
// selected league, parse the raw text or workbook, classify rows against the
// index, fan out feature requests and stage the resulting batch on the
// client's session.
//
// Services accept interfaces for their collaborators and return domain
// types, keeping transport concerns out of this layer.
package services
