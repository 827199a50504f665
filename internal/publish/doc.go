// Package publish copies a production build to an S3 origin.
//
// Uploads run concurrently with web content types and cache headers
// derived from the output layout: hashed chunk and asset files cache
// forever, stable names revalidate. Pruning removes remote objects the
// current build no longer produces, so the bucket mirrors the output
// root after every deploy.
package publish
