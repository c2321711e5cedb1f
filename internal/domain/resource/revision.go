package resource

import (
	"time"

	"github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// Revision is a point-in-time snapshot of a resource.
type Revision struct {
	ID            int64             `json:"id"`
	ResourceUUID  string            `json:"resource_uuid"`
	Kind          resourcetype.Kind `json:"kind"`
	Bundle        string            `json:"bundle"`
	Created       int64             `json:"created"`
	Log           string            `json:"log"`
	Default       bool              `json:"default"`
	ProviderUUID  string            `json:"provider_uuid"`
	PublishedFrom int64             `json:"published_from,omitempty"`
	Snapshot      Snapshot          `json:"snapshot"`
}

// Draft reports whether the revision is not the visible one.
func (r Revision) Draft() bool { return !r.Default }

// CreatedISO formats the creation time as ISO-8601.
func (r Revision) CreatedISO() string {
	return time.Unix(r.Created, 0).UTC().Format(time.RFC3339)
}
