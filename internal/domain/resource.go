package domain

// Rel describes a resource's relationship to the identifier it is attached to.
type Rel string

// Known resource relationships.
const (
	RelOpenAccessDownload Rel = "open-access-download"
	RelImage              Rel = "image"
	RelThumbnail          Rel = "thumbnail"
	RelDescription        Rel = "description"
	RelSample             Rel = "sample"
)

// Resource is a descriptive or deliverable asset attached to an identifier:
// an open-access download link, a cover image, or a textual description.
type Resource struct {
	Record
	IdentifierID string       `json:"identifier_id"`
	Source       DataSource   `json:"source"`
	Rel          Rel          `json:"rel"`
	URL          string       `json:"url,omitempty"`
	MediaType    string       `json:"media_type,omitempty"`
	RightsStatus RightsStatus `json:"rights_status,omitempty"`

	// Content holds inline payloads, e.g. the text of a description.
	Content string `json:"content,omitempty"`

	// ThumbnailID links an image resource to its thumbnail, when the two
	// arrived as an adjacent pair in the same batch.
	ThumbnailID string `json:"thumbnail_id,omitempty"`

	// Image dimensions and blur hash, populated when the mirrored file has
	// been decoded.
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	BlurHash string `json:"blur_hash,omitempty"`

	// Quality bookkeeping. EstimatedQuality is the algorithmic score;
	// VoteCount/VoteSum accumulate human judgments; Quality is the running
	// weighted mean of the two, updatable without recomputing history.
	EstimatedQuality float64 `json:"estimated_quality"`
	VoteCount        int     `json:"vote_count"`
	VoteSum          float64 `json:"vote_sum"`
	Quality          float64 `json:"quality"`
}

// IsImage reports whether the resource is a cover image or thumbnail.
func (r *Resource) IsImage() bool {
	return r.Rel == RelImage || r.Rel == RelThumbnail
}
