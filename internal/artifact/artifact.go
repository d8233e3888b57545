// Package artifact defines one captured unit of data and the JSON payload
// announced on the message bus once it has been stored.
package artifact

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// PayloadType is the type tag carried by every published payload.
const PayloadType = "data"

// Artifact is produced by a device at capture time and enriched by the
// capture worker. RemotePath stays empty unless the store confirmed an upload.
type Artifact struct {
	CreationTimestamp time.Time
	DeviceID          string
	LocalPath         string
	RemotePath        string
}

// New returns an artifact captured at ts and staged at localPath. An empty
// localPath marks a direct-to-sink capture.
func New(ts time.Time, localPath string) *Artifact {
	return &Artifact{CreationTimestamp: ts, LocalPath: localPath}
}

// HasLocalFile reports whether the artifact was staged on disk and needs an upload.
func (a *Artifact) HasLocalFile() bool {
	return a != nil && strings.TrimSpace(a.LocalPath) != ""
}

type payload struct {
	Type              string       `json:"type"`
	DeviceID          *string      `json:"deviceID"`
	FilePath          string       `json:"filePath"`
	CreationTimestamp epochSeconds `json:"creationTimestamp"`
}

// Payload serializes the artifact in the wire format subscribers expect:
//
//	{"type":"data","deviceID":"cam-1","filePath":"bucket/img1.jpg","creationTimestamp":1700000000.0}
func (a *Artifact) Payload() ([]byte, error) {
	p := payload{
		Type:              PayloadType,
		FilePath:          a.RemotePath,
		CreationTimestamp: epochSeconds(a.CreationTimestamp),
	}
	if a.DeviceID != "" {
		id := a.DeviceID
		p.DeviceID = &id
	}
	return json.Marshal(p)
}

// epochSeconds renders as float seconds since the Unix epoch and always
// carries a fractional part.
type epochSeconds time.Time

func (e epochSeconds) MarshalJSON() ([]byte, error) {
	t := time.Time(e)
	secs := float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
	out := strconv.FormatFloat(secs, 'f', -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	return []byte(out), nil
}
