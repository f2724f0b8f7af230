package soap

import (
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
)

// EnvelopeNamespace is the SOAP 1.1 envelope namespace
const EnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

// Envelope wraps a typed operation element. The operation struct carries its own
// namespace in its XMLName so children inherit it as the default namespace.
type Envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    Body
}

// Body holds exactly one operation element
type Body struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
	Content interface{}
}

// Marshal encodes an operation into a complete SOAP document
func Marshal(operation interface{}) ([]byte, error) {
	out, err := xml.Marshal(Envelope{Body: Body{Content: operation}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Fault is a SOAP 1.1 fault returned instead of an operation response
type Fault struct {
	Code    string
	Message string
	Actor   string
	Detail  string
}

func (f *Fault) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("soap fault %s: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("soap fault: %s", f.Message)
}

func parseFault(elem *etree.Element) *Fault {
	f := &Fault{
		Code:    ChildText(elem, "faultcode"),
		Message: ChildText(elem, "faultstring"),
		Actor:   ChildText(elem, "faultactor"),
	}
	if detail := FindLocal(elem, "detail"); detail != nil {
		doc := etree.NewDocument()
		doc.SetRoot(detail.Copy())
		if s, err := doc.WriteToString(); err == nil {
			f.Detail = s
		}
	}
	return f
}

// FindLocal searches elem and its descendants for an element by local name
func FindLocal(elem *etree.Element, localName string) *etree.Element {
	if elem == nil {
		return nil
	}
	if hasLocalName(elem, localName) {
		return elem
	}
	for _, child := range elem.ChildElements() {
		if found := FindLocal(child, localName); found != nil {
			return found
		}
	}
	return nil
}

// FindAllLocal returns every descendant of elem with the given local name, in document order
func FindAllLocal(elem *etree.Element, localName string) []*etree.Element {
	var found []*etree.Element
	if elem == nil {
		return found
	}
	for _, child := range elem.ChildElements() {
		if hasLocalName(child, localName) {
			found = append(found, child)
		}
		found = append(found, FindAllLocal(child, localName)...)
	}
	return found
}

// Child returns the first direct child of elem with the given local name
func Child(elem *etree.Element, localName string) *etree.Element {
	if elem == nil {
		return nil
	}
	for _, child := range elem.ChildElements() {
		if hasLocalName(child, localName) {
			return child
		}
	}
	return nil
}

// ChildText returns the text of a direct child, or "" when absent
func ChildText(elem *etree.Element, localName string) string {
	if child := Child(elem, localName); child != nil {
		return child.Text()
	}
	return ""
}

// Decode unmarshals elem into v with encoding/xml. Tags on v should be
// namespace-free so they match whichever prefix the server used.
func Decode(elem *etree.Element, v interface{}) error {
	doc := etree.NewDocument()
	doc.SetRoot(elem.Copy())
	data, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", elem.Tag, err)
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", elem.Tag, err)
	}
	return nil
}

// hasLocalName checks if element has the given local name (ignoring namespace prefix)
func hasLocalName(elem *etree.Element, localName string) bool {
	return elem.Tag == localName
}
