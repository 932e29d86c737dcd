// Package simplesubmit publishes user contributions to a HydroShare-style
// content repository.
//
// A Draft holds what the user typed. Validate turns it into a Payload, and a
// Pipeline drives that payload through thumbnail upload, resource creation,
// science metadata, file uploads (ending with a generated README.md), access
// rules and custom metadata. Each step is a State; Transition decides what
// comes next and every run ends in StateSucceeded or StateFailed.
//
// Remote calls go through the Repository interface (see the hydroshare
// subpackage) and thumbnails through ThumbnailStore (storage/s3,
// storage/memory). Authentication is behind Identity, so the pipeline only
// sees a bearer token and can ask for a login.
//
// Failure Semantics
//
// A failure after the resource was created leaves it in the repository.
// Result.Orphaned is set and Result.ResourceID names it; nothing is deleted
// automatically. A failure while writing custom metadata is logged as a
// warning and the run still succeeds.
package simplesubmit
