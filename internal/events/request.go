package events

import (
	"encoding/xml"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 layout used on outbound requests.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

const ebuNamespace = "urn:ebu:metadata-schema:ebuCore_2012"

// GetMetadataRequest asks the metadata service to fetch metadata for a media id.
type GetMetadataRequest struct {
	XMLName       xml.Name `xml:"getMetadataRequest"`
	Xmlns         string   `xml:"xmlns,attr"`
	XmlnsEbu      string   `xml:"xmlns:ebu,attr"`
	Timestamp     string   `xml:"timestamp"`
	CorrelationID string   `xml:"correlationId"`
	MediaID       string   `xml:"mediaId"`
}

// NewGetMetadataRequest uses the media id as correlation id.
func NewGetMetadataRequest(now time.Time, mediaID string) GetMetadataRequest {
	return GetMetadataRequest{
		Xmlns:         Namespace,
		XmlnsEbu:      ebuNamespace,
		Timestamp:     now.Format(TimestampLayout),
		CorrelationID: mediaID,
		MediaID:       mediaID,
	}
}

// Marshal renders the request as an indented UTF-8 document with declaration.
func (r GetMetadataRequest) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal getMetadataRequest: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
