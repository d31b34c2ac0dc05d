// Package events parses the essence lifecycle events received from the queue
// and builds the getMetadataRequest published after a successful link.
package events

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// Namespace is the XML namespace of every inbound event and outbound request.
const Namespace = "http://www.vrt.be/mig/viaa/api"

// Root tags of the three event kinds.
const (
	TagEssenceLinked   = "essenceLinkedEvent"
	TagEssenceUnlinked = "essenceUnlinkedEvent"
	TagObjectDeleted   = "objectDeletedEvent"
)

// Event is implemented by every parsed event.
type Event interface {
	Kind() string
	Timestamp() string
	MediaID() string
}

// InvalidEventError reports XML that cannot be turned into an event.
type InvalidEventError struct {
	Message string
	Err     error
}

func (e *InvalidEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *InvalidEventError) Unwrap() error { return e.Err }

// IsInvalid reports whether err is an InvalidEventError.
func IsInvalid(err error) bool {
	var ie *InvalidEventError
	return errors.As(err, &ie)
}

// Base carries the fields common to every event.
type Base struct {
	timestamp string
	mediaID   string
}

func (b Base) Timestamp() string { return b.timestamp }
func (b Base) MediaID() string   { return b.mediaID }

// EssenceLinkedEvent announces that an essence file was linked to a media id.
type EssenceLinkedEvent struct {
	Base
	File     string
	S3Bucket string
}

func (EssenceLinkedEvent) Kind() string { return TagEssenceLinked }

// EssenceUnlinkedEvent announces that the essence for a media id was unlinked.
type EssenceUnlinkedEvent struct {
	Base
}

func (EssenceUnlinkedEvent) Kind() string { return TagEssenceUnlinked }

// ObjectDeletedEvent announces that the object for a media id was deleted.
type ObjectDeletedEvent struct {
	Base
}

func (ObjectDeletedEvent) Kind() string { return TagObjectDeleted }

// body collects every child the parser knows about. Slices keep the first
// occurrence addressable and tell an absent element from an empty one.
type body struct {
	Timestamp []string `xml:"http://www.vrt.be/mig/viaa/api timestamp"`
	MediaID   []string `xml:"http://www.vrt.be/mig/viaa/api mediaId"`
	File      []string `xml:"http://www.vrt.be/mig/viaa/api file"`
	S3Bucket  []string `xml:"http://www.vrt.be/mig/viaa/api s3bucket"`
}

// ParseEssenceLinked parses an essenceLinkedEvent. s3bucket is optional.
func ParseEssenceLinked(raw []byte) (*EssenceLinkedEvent, error) {
	b, err := decode(raw, TagEssenceLinked)
	if err != nil {
		return nil, err
	}
	base, err := b.base()
	if err != nil {
		return nil, err
	}
	file, err := field(b.File, "file", false)
	if err != nil {
		return nil, err
	}
	bucket, _ := field(b.S3Bucket, "s3bucket", true)
	return &EssenceLinkedEvent{Base: base, File: file, S3Bucket: bucket}, nil
}

// ParseEssenceUnlinked parses an essenceUnlinkedEvent.
func ParseEssenceUnlinked(raw []byte) (*EssenceUnlinkedEvent, error) {
	b, err := decode(raw, TagEssenceUnlinked)
	if err != nil {
		return nil, err
	}
	base, err := b.base()
	if err != nil {
		return nil, err
	}
	return &EssenceUnlinkedEvent{Base: base}, nil
}

// ParseObjectDeleted parses an objectDeletedEvent.
func ParseObjectDeleted(raw []byte) (*ObjectDeletedEvent, error) {
	b, err := decode(raw, TagObjectDeleted)
	if err != nil {
		return nil, err
	}
	base, err := b.base()
	if err != nil {
		return nil, err
	}
	return &ObjectDeletedEvent{Base: base}, nil
}

func (b *body) base() (Base, error) {
	ts, err := field(b.Timestamp, "timestamp", false)
	if err != nil {
		return Base{}, err
	}
	id, err := field(b.MediaID, "mediaId", false)
	if err != nil {
		return Base{}, err
	}
	return Base{timestamp: ts, mediaID: id}, nil
}

// field returns the first value. Mandatory fields must be present and non-empty.
func field(values []string, name string, optional bool) (string, error) {
	if len(values) == 0 || values[0] == "" {
		if optional {
			return "", nil
		}
		return "", &InvalidEventError{Message: fmt.Sprintf("'%s' is not present in the event", name)}
	}
	return values[0], nil
}

func decode(raw []byte, rootTag string) (*body, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, invalidXML(io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, invalidXML(err)
		}
		if err := outsideRoot(tok); err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space != Namespace || start.Name.Local != rootTag {
			return nil, &InvalidEventError{Message: fmt.Sprintf("event is not a '%s'", rootTag)}
		}
		var b body
		if err := dec.DecodeElement(&b, &start); err != nil {
			return nil, invalidXML(err)
		}
		if err := expectEOF(dec); err != nil {
			return nil, err
		}
		return &b, nil
	}
}

// expectEOF rejects anything but whitespace, comments and processing
// instructions after the root element.
func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return invalidXML(err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			return invalidXML(errors.New("more than one root element"))
		}
		if err := outsideRoot(tok); err != nil {
			return err
		}
	}
}

// outsideRoot rejects text outside the root element.
func outsideRoot(tok xml.Token) error {
	if cd, ok := tok.(xml.CharData); ok && len(bytes.TrimSpace(cd)) > 0 {
		return invalidXML(errors.New("text outside the root element"))
	}
	return nil
}

func invalidXML(err error) *InvalidEventError {
	return &InvalidEventError{Message: "event is not valid XML", Err: err}
}
