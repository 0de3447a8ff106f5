// Package topology infers a connectivity graph across a set of canonical
// device records and computes a 2-D layout for it with a force-directed
// simulation. The graph is derived, never persisted: it is rebuilt in full on
// every request from the records supplied.
package topology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"netlens/internal/models"
)

// NodeKind distinguishes the entities a graph node can represent
type NodeKind string

const (
	NodeDevice   NodeKind = "device"
	NodeEndpoint NodeKind = "endpoint"
	NodeHardware NodeKind = "hardware"
)

// Node is one vertex of the inferred topology
type Node struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Kind  NodeKind `json:"kind"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Mass  float64  `json:"mass"`
}

// Edge is an undirected, deduplicated connection between two nodes
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Graph is the derived node/edge structure plus its layout
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Options controls which optional node classes are materialized, whether
// large leaf clusters are collapsed into a count annotation, and the layout
// parameters. Zero-valued layout fields fall back to the package defaults.
type Options struct {
	IncludeEndpoints bool `json:"includeEndpoints"`
	IncludeHardware  bool `json:"includeHardware"`
	CollapseClusters bool `json:"collapseClusters"`

	CanvasWidth   float64 `json:"canvasWidth,omitempty"`
	CanvasHeight  float64 `json:"canvasHeight,omitempty"`
	Iterations    int     `json:"iterations,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
	ClusterFanOut int     `json:"clusterFanOut,omitempty"`
}

// clusterFanOut is the default leaf-neighbor count above which a device's
// non-device neighbors are collapsed
const clusterFanOut = 3

// builder accumulates nodes and edges with deduplication
type builder struct {
	nodes   []Node
	nodeIdx map[string]int
	edges   []Edge
	edgeSet map[string]bool
}

func newBuilder() *builder {
	return &builder{
		nodeIdx: make(map[string]int),
		edgeSet: make(map[string]bool),
	}
}

func (b *builder) addNode(id, label string, kind NodeKind, mass float64) {
	if _, ok := b.nodeIdx[id]; ok {
		return
	}
	b.nodeIdx[id] = len(b.nodes)
	b.nodes = append(b.nodes, Node{ID: id, Label: label, Kind: kind, Mass: mass})
}

// addEdge inserts an undirected edge at most once regardless of direction or
// how many signals support it
func (b *builder) addEdge(a, bID, label string) {
	if a == bID {
		return
	}
	key := a + "\x00" + bID
	if bID < a {
		key = bID + "\x00" + a
	}
	if b.edgeSet[key] {
		return
	}
	b.edgeSet[key] = true
	b.edges = append(b.edges, Edge{From: a, To: bID, Label: label})
}

// Build infers the topology graph from the given records and computes a
// deterministic layout for it
func Build(records []*models.DeviceRecord, opts Options) *Graph {
	b := newBuilder()

	// One device node per record. Identity falls back to a generated id so a
	// nameless record still appears in the graph.
	ids := make([]string, len(records))
	for i, rec := range records {
		id := rec.Identity()
		if id == "" {
			id = "device-" + uuid.NewString()[:8]
		}
		ids[i] = id
		b.addNode(id, id, NodeDevice, 3)
	}

	// Address-to-device lookup over every interface's primary address.
	addrOwner := make(map[string]string)
	for i, rec := range records {
		for _, ifc := range rec.Interfaces {
			if ifc.IPAddress != "" {
				if _, ok := addrOwner[ifc.IPAddress]; !ok {
					addrOwner[ifc.IPAddress] = ids[i]
				}
			}
		}
	}

	for i, rec := range records {
		self := ids[i]

		// Description mentions of another device's identity.
		for _, ifc := range rec.Interfaces {
			if ifc.Description == "" {
				continue
			}
			descLower := strings.ToLower(ifc.Description)
			for j, other := range ids {
				if j == i || other == "" {
					continue
				}
				if strings.Contains(descLower, strings.ToLower(other)) {
					b.addEdge(self, other, "description")
				}
			}
		}

		// Interface addresses owned by another device.
		for _, ifc := range rec.Interfaces {
			if owner, ok := addrOwner[ifc.IPAddress]; ok && owner != self {
				b.addEdge(self, owner, "address")
			}
		}

		// Routing peers that resolve to a known device.
		for _, peer := range rec.BGPPeers {
			if owner, ok := addrOwner[peer]; ok && owner != self {
				b.addEdge(self, owner, "bgp")
			}
		}

		// Discovery-protocol neighbors naming a known device.
		for _, n := range rec.Neighbors {
			for j, other := range ids {
				if j == i {
					continue
				}
				if strings.EqualFold(n.RemoteDevice, other) {
					b.addEdge(self, other, "neighbor")
				}
			}
		}
	}

	if opts.IncludeEndpoints {
		addEndpointNodes(b, records, ids, addrOwner)
	}
	if opts.IncludeHardware {
		addHardwareNodes(b, records, ids)
	}
	if opts.CollapseClusters {
		fanOut := opts.ClusterFanOut
		if fanOut <= 0 {
			fanOut = clusterFanOut
		}
		collapseClusters(b, fanOut)
	}

	width, height := opts.CanvasWidth, opts.CanvasHeight
	if width <= 0 {
		width = defaultCanvas
	}
	if height <= 0 {
		height = defaultCanvas
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}
	seed := opts.Seed
	if seed == 0 {
		seed = defaultSeed
	}

	g := &Graph{Nodes: b.nodes, Edges: b.edges}
	g.layout(width, height, iterations, seed)
	return g
}

// addEndpointNodes creates endpoint-address nodes for addresses seen in
// interface descriptions, interface addresses, and vendor-extension values
// that no analyzed device owns, connected to the observing device
func addEndpointNodes(b *builder, records []*models.DeviceRecord, ids []string, addrOwner map[string]string) {
	for i, rec := range records {
		self := ids[i]
		seen := func(addr string) {
			if addr == "" {
				return
			}
			if _, owned := addrOwner[addr]; owned {
				return
			}
			id := "ep:" + addr
			b.addNode(id, addr, NodeEndpoint, 1)
			b.addEdge(self, id, "endpoint")
		}

		for _, ifc := range rec.Interfaces {
			for _, addr := range extractAddresses(ifc.Description) {
				seen(addr)
			}
		}
		for _, peer := range rec.BGPPeers {
			if looksLikeAddress(peer) {
				seen(peer)
			}
		}
		for _, key := range rec.ExtensionKeys() {
			for _, s := range rec.Extensions[key].Strings() {
				for _, addr := range extractAddresses(s) {
					seen(addr)
				}
			}
		}
	}
}

// addHardwareNodes creates hardware-address nodes from ARP and lease tables,
// connected to the owning device and cross-linked to the matching endpoint
// node when one exists
func addHardwareNodes(b *builder, records []*models.DeviceRecord, ids []string) {
	for i, rec := range records {
		self := ids[i]
		link := func(ip, mac string) {
			if mac == "" {
				return
			}
			id := "hw:" + strings.ToLower(mac)
			b.addNode(id, strings.ToLower(mac), NodeHardware, 1)
			b.addEdge(self, id, "hardware")
			if ip != "" {
				if _, ok := b.nodeIdx["ep:"+ip]; ok {
					b.addEdge("ep:"+ip, id, "arp")
				}
			}
		}
		for _, e := range rec.ArpEntries {
			link(e.IPAddress, e.MACAddress)
		}
		for _, l := range rec.DHCPLeases {
			link(l.IPAddress, l.MACAddress)
		}
	}
}

// collapseClusters removes non-device leaf neighbors beyond the fan-out
// threshold and annotates the device's label with the removed count
func collapseClusters(b *builder, fanOut int) {
	degree := make(map[string]int)
	for _, e := range b.edges {
		degree[e.From]++
		degree[e.To]++
	}

	leafNeighbors := make(map[string][]string)
	for _, e := range b.edges {
		fi, fOK := b.nodeIdx[e.From]
		ti, tOK := b.nodeIdx[e.To]
		if !fOK || !tOK {
			continue
		}
		from, to := b.nodes[fi], b.nodes[ti]
		if from.Kind == NodeDevice && to.Kind != NodeDevice && degree[to.ID] == 1 {
			leafNeighbors[from.ID] = append(leafNeighbors[from.ID], to.ID)
		}
		if to.Kind == NodeDevice && from.Kind != NodeDevice && degree[from.ID] == 1 {
			leafNeighbors[to.ID] = append(leafNeighbors[to.ID], from.ID)
		}
	}

	remove := make(map[string]bool)
	for deviceID, leaves := range leafNeighbors {
		if len(leaves) <= fanOut {
			continue
		}
		for _, leaf := range leaves {
			remove[leaf] = true
		}
		idx := b.nodeIdx[deviceID]
		b.nodes[idx].Label = fmt.Sprintf("%s (+%d)", b.nodes[idx].Label, len(leaves))
	}
	if len(remove) == 0 {
		return
	}

	nodes := b.nodes[:0]
	newIdx := make(map[string]int)
	for _, n := range b.nodes {
		if remove[n.ID] {
			continue
		}
		newIdx[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}
	b.nodes = nodes
	b.nodeIdx = newIdx

	edges := b.edges[:0]
	for _, e := range b.edges {
		if remove[e.From] || remove[e.To] {
			continue
		}
		edges = append(edges, e)
	}
	b.edges = edges
}

// SortedEdges returns the edge set in a stable order for comparison
func (g *Graph) SortedEdges() []Edge {
	out := make([]Edge, len(g.Edges))
	copy(out, g.Edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func looksLikeAddress(s string) bool {
	return addrRe.MatchString(s)
}

func extractAddresses(s string) []string {
	return addrRe.FindAllString(s, -1)
}
