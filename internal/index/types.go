package index

import (
	"github.com/kamusis/assessrec/internal/metadata"
	"github.com/kamusis/assessrec/internal/vector"
)

// ManifestFile names the manifest inside an index location. It is the only
// fixed name; vector and metadata files are named per publish.
const ManifestFile = "index_manifest.json"

// FormatVersion is the artifact layout written by Publish.
const FormatVersion = 2

// Manifest describes a published index and how to interpret it.
type Manifest struct {
	IndexVersion       int    `json:"index_version"`
	CreatedAt          string `json:"created_at"`
	ModelID            string `json:"model_id"`
	Dim                int    `json:"dim"`
	Count              int    `json:"count"`
	Normalize          bool   `json:"normalize"`
	Backend            string `json:"backend"`
	CatalogFingerprint string `json:"catalog_fingerprint"`
	VectorFile         string `json:"vector_file"`
	VectorSHA256       string `json:"vector_sha256"`
	MetadataFile       string `json:"metadata_file"`
	MetadataSHA256     string `json:"metadata_sha256"`
}

// Bundle is a vector index together with its slot-aligned metadata. Both are
// built from one catalog snapshot and are never modified afterwards.
type Bundle struct {
	Manifest Manifest
	Index    vector.Index
	Store    *metadata.Store
}

// VectorFileName returns the vector file name for backend in publish id.
func VectorFileName(id, backend string) string {
	return "vectors-" + id + "." + backend
}

// MetadataFileName returns the metadata file name in publish id.
func MetadataFileName(id string) string {
	return "catalog-" + id + ".jsonl"
}
