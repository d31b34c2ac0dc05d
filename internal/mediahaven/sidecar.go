package mediahaven

import (
	"encoding/xml"
	"fmt"
)

// SidecarNamespace is the MHS 20.1 metadata namespace.
const SidecarNamespace = "https://zeticon.mediahaven.com/metadata/20.1/mhs/"

const (
	sidecarVersion     = "20.1"
	ObjectLevelIE      = "ie"
	ObjectUseArchive   = "archive_master"
	UpdateReasonLinked = "essenceLinked: add mediaID to fragment"
)

// FragmentMetadata is the dynamic metadata written onto a new fragment.
type FragmentMetadata struct {
	MediaID string
	PID     string
	IEType  string
}

type sidecar struct {
	XMLName xml.Name       `xml:"mhs:Sidecar"`
	Xmlns   string         `xml:"xmlns:mhs,attr"`
	Version string         `xml:"version,attr"`
	Dynamic sidecarDynamic `xml:"mhs:Dynamic"`
}

type sidecarDynamic struct {
	LocalID     string `xml:"dc_identifier_localid"`
	PID         string `xml:"PID"`
	MediaID     string `xml:"dc_identifier_localids>MEDIA_ID"`
	ObjectLevel string `xml:"object_level"`
	ObjectUse   string `xml:"object_use"`
	IEType      string `xml:"ie_type"`
}

// Sidecar renders the metadata as an MHS sidecar document.
func (m FragmentMetadata) Sidecar() ([]byte, error) {
	doc := sidecar{
		Xmlns:   SidecarNamespace,
		Version: sidecarVersion,
		Dynamic: sidecarDynamic{
			LocalID:     m.MediaID,
			PID:         m.PID,
			MediaID:     m.MediaID,
			ObjectLevel: ObjectLevelIE,
			ObjectUse:   ObjectUseArchive,
			IEType:      m.IEType,
		},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sidecar: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
