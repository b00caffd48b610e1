package ingest

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vantagesearch/vantage/internal/types"
)

// progressInterval is how many completed records pass between progress
// callbacks.
const progressInterval = 10000

// parseBufferSize sizes the read buffer in front of the decoder. Extract
// files run to hundreds of megabytes; the parser itself holds at most
// one record regardless.
const parseBufferSize = 256 << 10

// recordWriter accepts normalized records. *Writer implements it; tests
// substitute recorders.
type recordWriter interface {
	Add(ctx context.Context, rec Record) error
}

// Parse streams one register extract from r, normalizing each completed
// ABR record and handing it to w. Add is awaited before the next token
// is read, so the writer's buffer bounds everything in flight. Records
// without an ABN are dropped silently. progress, if non-nil, fires every
// progressInterval completed records with the running count.
//
// Returns the number of records handed to w.
func Parse(ctx context.Context, r io.Reader, w recordWriter, progress func(int)) (int, error) {
	dec := xml.NewDecoder(bufio.NewReaderSize(r, parseBufferSize))

	var (
		stack         []string
		text          strings.Builder
		cur           *rawRecord
		otherNameType string
		processed     int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return processed, nil
		}
		if err != nil {
			return processed, fmt.Errorf("failed to parse extract: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			text.Reset()

			switch t.Name.Local {
			case "ABR":
				cur = &rawRecord{recordLastUpdated: attrValue(t, "recordLastUpdatedDate")}
			case "ABN":
				if cur != nil {
					cur.abnStatus = attrValue(t, "status")
					cur.abnStatusFrom = attrValue(t, "ABNStatusFromDate")
				}
			case "GST":
				if cur != nil {
					cur.gstStatus = attrValue(t, "status")
					cur.gstFrom = attrValue(t, "GSTStatusFromDate")
				}
			case "NonIndividualName":
				switch ancestor(stack, 1) {
				case "OtherEntity":
					otherNameType = attrValue(t, "type")
				case "DGR":
					otherNameType = attrValue(t, "type")
					if otherNameType == "" {
						otherNameType = types.NameTypeDGR
					}
				}
			}

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			value := strings.TrimSpace(text.String())

			if cur != nil {
				switch t.Name.Local {
				case "ABN":
					cur.abn = value
				case "EntityTypeInd":
					cur.entityTypeCode = value
				case "EntityTypeText":
					cur.entityTypeText = value
				case "NonIndividualNameText":
					// Grandparent disambiguation: the same tag is the
					// record's primary name under MainEntity and an
					// alternate name under OtherEntity or DGR.
					if ancestor(stack, 1) == "NonIndividualName" {
						switch ancestor(stack, 2) {
						case "MainEntity":
							cur.mainName = value
						case "OtherEntity", "DGR":
							cur.otherNames = append(cur.otherNames, rawName{
								nameType: otherNameType,
								nameText: value,
							})
						}
					}
				case "GivenName":
					if ancestor(stack, 1) == "LegalEntity" && value != "" {
						cur.givenNames = append(cur.givenNames, value)
					}
				case "FamilyName":
					if ancestor(stack, 1) == "LegalEntity" {
						cur.familyName = value
					}
				case "State":
					cur.state = value
				case "Postcode":
					cur.postcode = value
				case "ASICNumber":
					cur.acn = value
				case "ABR":
					if cur.abn != "" {
						if err := w.Add(ctx, normalize(cur)); err != nil {
							return processed, err
						}
						processed++
						if progress != nil && processed%progressInterval == 0 {
							progress(processed)
						}
					}
					cur = nil
					otherNameType = ""
				}
			}

			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			text.Reset()
		}
	}
}

// ancestor returns the element n levels above the innermost open one, or
// "" when the stack is not that deep.
func ancestor(stack []string, n int) string {
	idx := len(stack) - 1 - n
	if idx < 0 {
		return ""
	}
	return stack[idx]
}

func attrValue(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
