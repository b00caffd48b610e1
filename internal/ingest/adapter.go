package ingest

import (
	"strings"
	"time"

	"github.com/vantagesearch/vantage/internal/storage"
	"github.com/vantagesearch/vantage/internal/types"
)

// Record is one normalized business plus its secondary names, still
// keyed by ABN. This is the unit the batch writer buffers.
type Record struct {
	Business types.Business
	Names    []storage.NameRow
}

// rawRecord accumulates the fields of one ABR element as the parser
// encounters them. All values are untrimmed-source strings; the adapter
// owns normalization.
type rawRecord struct {
	abn               string
	abnStatus         string
	abnStatusFrom     string
	entityTypeCode    string
	entityTypeText    string
	mainName          string
	givenNames        []string
	familyName        string
	state             string
	postcode          string
	gstStatus         string
	gstFrom           string
	acn               string
	recordLastUpdated string
	otherNames        []rawName
}

type rawName struct {
	nameType string
	nameText string
}

// sentinelDate marks "not applicable" in the source extract.
const sentinelDate = "19000101"

// fallbackEntityName labels non-individual records whose extract entry
// carries no main name.
const fallbackEntityName = "Unknown Entity"

// normalize converts a completed raw record into the storable shape:
// individuals get their display name assembled from the name parts,
// everything else takes the main entity name or the unknown-name
// fallback. Dates parse from YYYYMMDD with the sentinel and malformed
// values both becoming null.
func normalize(raw *rawRecord) Record {
	b := types.Business{
		ABN:               raw.abn,
		ABNStatus:         raw.abnStatus,
		ABNStatusFromDate: parseDate(raw.abnStatusFrom),
		EntityTypeCode:    raw.entityTypeCode,
		EntityTypeText:    optional(raw.entityTypeText),
		State:             optional(raw.state),
		Postcode:          optional(raw.postcode),
		GSTStatus:         optional(raw.gstStatus),
		GSTFromDate:       parseDate(raw.gstFrom),
		ACN:               optional(raw.acn),
		RecordLastUpdated: parseDate(raw.recordLastUpdated),
	}

	if raw.entityTypeCode == types.EntityTypeIndividual {
		given := strings.Join(raw.givenNames, " ")
		b.GivenName = optional(given)
		b.FamilyName = optional(raw.familyName)
		b.EntityName = joinNonEmpty(given, raw.familyName)
	} else {
		b.EntityName = raw.mainName
		if b.EntityName == "" {
			b.EntityName = fallbackEntityName
		}
	}

	var names []storage.NameRow
	for _, n := range raw.otherNames {
		if n.nameText == "" {
			continue
		}
		names = append(names, storage.NameRow{
			ABN:      raw.abn,
			NameType: n.nameType,
			NameText: n.nameText,
		})
	}

	return Record{Business: b, Names: names}
}

// parseDate reads a YYYYMMDD extract date. The sentinel value and
// anything malformed become nil.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == sentinelDate {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}

// optional maps the empty string to a null column value.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// joinNonEmpty joins the parts with single spaces, omitting empties.
func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
