// Package overpass builds Overpass QL queries and parses Overpass responses.
//
// See https://wiki.openstreetmap.org/wiki/Overpass_API/Overpass_QL
package overpass

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

const (
	requestHeader = "[out:json][timeout:180];"
	requestFooter = ";out tags;"

	// admin_level=4 is usually a region well known by name but smaller than a country.
	regionTags = "[boundary=administrative][admin_level=4]"
)

const (
	requestByName = `[out:json];` +
		`rel["name"="%s"]["boundary"="administrative"];` +
		`out ids;`

	requestByPosition = `[out:json];` +
		`is_in(%s,%s) -> .areas;` +
		`(` +
		`rel(pivot.areas)["boundary"="administrative"];` +
		`rel(pivot.areas)["place"~"^(city|town|state)$"];` +
		`);` +
		`out ids;`

	requestTourismNodes = `[out:json][timeout:60];` +
		`rel(%d);` +
		`map_to_area -> .a;` +
		`node(area.a)["tourism"];` +
		`out body;`
)

// ByName finds administrative relations with exactly this name.
func ByName(name string) string {
	return fmt.Sprintf(requestByName, escapeString(name))
}

// ByPosition finds relations whose area contains the point.
func ByPosition(lat, lon float64) string {
	return fmt.Sprintf(requestByPosition, formatCoord(lat), formatCoord(lon))
}

// TourismNodes lists tourism nodes inside the area of a relation.
func TourismNodes(id model.EntityID) string {
	return fmt.Sprintf(requestTourismNodes, int64(id))
}

// fragment is the sub-query one feature contributes; it always ends by storing
// relations into the named set ".rel<suffix>".
type fragment struct {
	suffix string
	text   string
}

func (f fragment) resultSet() string { return ".rel" + f.suffix }

// RegionQuery accumulates per-feature fragments.
type RegionQuery struct {
	fragments []fragment
}

func (q *RegionQuery) add(suffix, nodes string) {
	q.fragments = append(q.fragments, fragment{
		suffix: suffix,
		text:   relationsByNodes(nodes, suffix),
	})
}

// Empty reports whether no feature contributed.
func (q *RegionQuery) Empty() bool { return len(q.fragments) == 0 }

// String assembles the final query, or "" when nothing was contributed.
func (q *RegionQuery) String() string {
	return assemble(q.fragments)
}

func assemble(frags []fragment) string {
	if len(frags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(requestHeader)
	for _, f := range frags {
		b.WriteString(f.text)
	}
	// result is the intersection of all per-feature sets
	b.WriteString("rel")
	for _, f := range frags {
		b.WriteString(f.resultSet())
	}
	b.WriteString(requestFooter)
	return b.String()
}

// relationsByNodes stores the nodes, the areas containing them and the
// region relations outlining those areas into suffixed named sets.
func relationsByNodes(nodes, suffix string) string {
	return fmt.Sprintf("%[1]s -> .nodes%[2]s;"+
		".nodes%[2]s is_in -> .areas%[2]s;"+
		"rel(pivot.areas%[2]s)%[3]s -> .rel%[2]s;",
		nodes, suffix, regionTags)
}

// BuildRegionQuery returns the region search query for the box, or "" when
// no enabled feature can contribute.
func BuildRegionQuery(bb model.BBox, prefs model.Preferences) string {
	q := NewRegionQuery(bb, prefs)
	return q.String()
}

func NewRegionQuery(bb model.BBox, prefs model.Preferences) *RegionQuery {
	box := formatBBox(bb)
	q := &RegionQuery{}
	for _, f := range prefs.Features.Features() {
		switch f {
		case model.FeatureInternationalAirports:
			q.add("A", airportNodes(box, "A"))
		case model.FeaturePeaks:
			h, ok := minPeakHeight(prefs)
			if !ok {
				continue
			}
			q.add("P", peakNodes(box, h))
		case model.FeatureSeaBeaches:
			q.add("S", beachNodes(box, "S"))
		case model.FeatureSaltLakes:
			q.add("L", saltLakeNodes(box, "L"))
		}
	}
	return q
}

// Ways and relations are recursed down to nodes; named sets keep the default set clean.
func airportNodes(box, s string) string {
	return fmt.Sprintf("("+
		`nwr["aeroway"="aerodrome"]["aerodrome:type"="international"](%[1]s);`+
		`nwr["aerodrome"="international"](%[1]s);`+
		") -> .out%[2]s;"+
		".out%[2]s > -> .out%[2]s;"+
		"node.out%[2]s", box, s)
}

func peakNodes(box string, minHeight float64) string {
	return fmt.Sprintf(`node[natural=peak][name](%s)(if: is_number(t["ele"]) && number(t["ele"]) > %s)`,
		box, strconv.FormatFloat(minHeight, 'f', -1, 64))
}

func beachNodes(box, s string) string {
	return fmt.Sprintf("way[natural=coastline](%[1]s) -> .coastlines%[2]s;"+
		"node(around.coastlines%[2]s:100)[natural=beach]", box, s)
}

// Only nodes inside the box are kept: a lake can span several regions or countries.
func saltLakeNodes(box, s string) string {
	return fmt.Sprintf("wr[natural=water][water=lake][salt=yes][name](%[1]s) -> .out%[2]s;"+
		".out%[2]s > -> .out%[2]s;"+
		"node.out%[2]s(%[1]s)", box, s)
}

func minPeakHeight(prefs model.Preferences) (float64, bool) {
	raw, ok := prefs.Property(model.PropMinPeakHeight)
	if !ok {
		return 0, false
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, false
	}
	return h, true
}

// Overpass expects (south, west, north, east).
func formatBBox(bb model.BBox) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bb.South, bb.West, bb.North, bb.East)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return r.Replace(s)
}
