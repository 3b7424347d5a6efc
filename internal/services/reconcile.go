package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"schemacanvas/internal/graph"
	"schemacanvas/internal/models"
	"schemacanvas/internal/store"
	"schemacanvas/internal/utils"
)

type TypeMismatch struct {
	Column string `json:"column"`
	Local  string `json:"local"`
	Server string `json:"server"`
}

// TableDiff compares the canvas columns of one table with what the server reports.
type TableDiff struct {
	NodeID         string         `json:"nodeId"`
	Table          string         `json:"table"`
	OnlyLocal      []string       `json:"onlyLocal"`
	OnlyServer     []string       `json:"onlyServer"`
	TypeMismatches []TypeMismatch `json:"typeMismatches"`
	Stale          bool           `json:"stale,omitempty"`
	Error          string         `json:"error,omitempty"`
	Adopted        bool           `json:"adopted"`
}

func (d TableDiff) Clean() bool {
	return len(d.OnlyLocal) == 0 && len(d.OnlyServer) == 0 && len(d.TypeMismatches) == 0
}

type ReconcileReport struct {
	Tables []TableDiff `json:"tables"`
	Clean  bool        `json:"clean"`
}

// Reconcile diffs every database-bound table against a fresh column fetch. When the fetch
// fails the last columns the server reported are used and the diff is marked stale. With
// adopt, tables that differ take the server's columns; column ids are kept by name so
// relationships on unchanged columns survive.
func (s *CanvasSession) Reconcile(ctx context.Context, adopt bool) (ReconcileReport, error) {
	report := ReconcileReport{Tables: []TableDiff{}, Clean: true}
	for _, node := range s.store.Nodes() {
		if node.Data.DB == nil || node.Data.Loading {
			continue
		}
		diff := TableDiff{NodeID: node.ID, Table: node.Data.Label}

		server, err := s.fetchServerColumns(ctx, node)
		if err != nil {
			diff.Error = utils.UserMessage(err)
			s.mu.RLock()
			known, ok := s.serverColumns[node.ID]
			s.mu.RUnlock()
			if !ok {
				report.Tables = append(report.Tables, diff)
				report.Clean = false
				continue
			}
			server = models.CloneColumns(known)
			diff.Stale = true
		}

		diffColumns(&diff, node.Data.Columns, server)
		if diff.Clean() {
			continue
		}
		report.Clean = false

		if adopt && !diff.Stale {
			if err := s.adoptColumns(node.ID, server); err != nil {
				diff.Error = utils.UserMessage(err)
			} else {
				diff.Adopted = true
			}
		}
		report.Tables = append(report.Tables, diff)
	}

	adopted := 0
	for _, d := range report.Tables {
		if d.Adopted {
			adopted++
		}
	}
	switch {
	case report.Clean:
		s.notes.Notify(models.SeverityInfo, "Canvas matches the database")
	case adopted > 0:
		s.notes.Notify(models.SeverityInfo, fmt.Sprintf("Restored server columns on %d tables", adopted))
	default:
		s.notes.Notify(models.SeverityWarning, fmt.Sprintf("%d tables differ from the database", len(report.Tables)))
	}
	return report, nil
}

func (s *CanvasSession) fetchServerColumns(ctx context.Context, node models.Node) ([]models.Column, error) {
	raw, err := s.backend.FetchColumns(ctx, *node.Data.DB, node.Data.Schema, node.Data.Label)
	if err != nil {
		return nil, err
	}
	cols, warnings, err := graph.NormalizeColumns(raw, node.Data.Label)
	if err != nil {
		return nil, utils.NewBackendRejection("unreadable column list", err)
	}
	for _, w := range warnings {
		log.Printf("reconcile %s: %s", node.Data.Label, w)
	}
	return cols, nil
}

func (s *CanvasSession) adoptColumns(nodeID string, server []models.Column) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	// Clear ids so the store carries existing ids over by name.
	cols := models.CloneColumns(server)
	for i := range cols {
		cols[i].ID = ""
	}
	if err := s.store.UpdateNode(nodeID, store.NodePatch{Columns: cols}); err != nil {
		return err
	}
	if n, ok := s.store.Node(nodeID); ok {
		cols = n.Data.Columns
	}

	s.mu.Lock()
	s.serverColumns[nodeID] = models.CloneColumns(cols)
	s.mu.Unlock()
	return nil
}

func diffColumns(d *TableDiff, local, server []models.Column) {
	d.OnlyLocal = []string{}
	d.OnlyServer = []string{}
	d.TypeMismatches = []TypeMismatch{}

	serverByName := make(map[string]models.Column, len(server))
	for _, c := range server {
		serverByName[c.Name] = c
	}
	localNames := make(map[string]bool, len(local))
	for _, c := range local {
		localNames[c.Name] = true
		sc, ok := serverByName[c.Name]
		if !ok {
			d.OnlyLocal = append(d.OnlyLocal, c.Name)
			continue
		}
		if !sameType(c.Type, sc.Type) {
			d.TypeMismatches = append(d.TypeMismatches, TypeMismatch{Column: c.Name, Local: c.Type, Server: sc.Type})
		}
	}
	for _, c := range server {
		if !localNames[c.Name] {
			d.OnlyServer = append(d.OnlyServer, c.Name)
		}
	}
	sort.Strings(d.OnlyLocal)
	sort.Strings(d.OnlyServer)
}

// sameType compares types loosely: case and the aliases PostgreSQL reports for common
// spellings.
func sameType(a, b string) bool {
	return canonicalType(a) == canonicalType(b)
}

var typeAliases = map[string]string{
	"int":         "integer",
	"int4":        "integer",
	"serial":      "integer",
	"int8":        "bigint",
	"bigserial":   "bigint",
	"int2":        "smallint",
	"bool":        "boolean",
	"varchar":     "character varying",
	"timestamp":   "timestamp without time zone",
	"timestamptz": "timestamp with time zone",
	"float8":      "double precision",
	"float4":      "real",
	"decimal":     "numeric",
	"char":        "character",
}

func canonicalType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.Index(t, "("); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if alias, ok := typeAliases[t]; ok {
		return alias
	}
	return t
}
