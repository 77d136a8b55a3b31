package overpass

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

// Node is a node element with its tags.
type Node struct {
	Lat  float64
	Lon  float64
	Tags model.Tags
}

// rawElements splits the response into its elements. Decoding them one by
// one keeps a single odd element from spoiling the rest.
func rawElements(body []byte) []json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	var doc struct {
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}
	return doc.Elements
}

func elementType(raw json.RawMessage) osm.Type {
	var e struct {
		Type osm.Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return ""
	}
	return e.Type
}

// ExtractRelationIDs returns ids of relation elements in response order.
// Malformed input yields an empty result.
func ExtractRelationIDs(body []byte) model.EntityIDs {
	var ids model.EntityIDs
	for _, raw := range rawElements(body) {
		if elementType(raw) != osm.TypeRelation {
			continue
		}
		var r osm.Relation
		if err := json.Unmarshal(raw, &r); err != nil || r.ID == 0 {
			continue
		}
		ids = append(ids, model.EntityID(r.ID))
	}
	return ids
}

// ExtractNodes returns node elements with their tags. Missing tags give an
// empty mapping.
func ExtractNodes(body []byte) []Node {
	var nodes []Node
	for _, raw := range rawElements(body) {
		if elementType(raw) != osm.TypeNode {
			continue
		}
		var n osm.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			continue
		}
		nodes = append(nodes, Node{Lat: n.Lat, Lon: n.Lon, Tags: model.Tags(n.Tags.Map())})
	}
	return nodes
}

// Fingerprint is a short stable hash of a query for log correlation.
func Fingerprint(query string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(query))
}
