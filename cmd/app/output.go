package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/stejskal/web-predator/internal/adapters/rpcjson"
	"github.com/stejskal/web-predator/internal/config"
	"github.com/stejskal/web-predator/internal/domain"
	"github.com/stejskal/web-predator/internal/explorer"
)

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatMaybe(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func printEntities(items []domain.Entity) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			uintToString(item.ID),
			item.Type,
			item.Name,
			strconv.Itoa(item.RelatedEntitiesCount),
			formatTime(item.UpdatedAt),
		})
	}
	printTable([]string{"ID", "TYPE", "NAME", "RELATED", "UPDATED_AT"}, rows)
}

func printNodes(nodes []explorer.NodeView) {
	if len(nodes) == 0 {
		fmt.Println("tree is empty")
		return
	}
	for i, n := range nodes {
		if i > 0 {
			fmt.Println()
		}
		printNode(n)
	}
}

func printNode(n explorer.NodeView) {
	state := "collapsed"
	switch {
	case n.IsLoadingRelationships:
		state = "loading"
	case n.IsExpanded:
		state = "expanded"
	}
	level := "nested"
	if n.TopLevel {
		level = "top-level"
	}
	fmt.Printf("%s [%s] #%d (%s, %s)\n", n.Entity.Name, n.Entity.Type, n.Entity.ID, state, level)
	open := make(map[uint]bool, len(n.ExpandedRelationships))
	for _, id := range n.ExpandedRelationships {
		open[id] = true
	}
	for _, rel := range n.Relationships {
		marker := "-"
		if open[rel.ID] {
			marker = "+"
		}
		fmt.Printf("  %s %s [%s] #%d\n", marker, rel.Name, rel.Type, rel.ID)
	}
}

func printStatus(s explorer.WorkflowStatus) {
	rows := [][2]string{{"state", string(s.State)}}
	if s.Error != "" {
		rows = append(rows, [2]string{"error", s.Error})
	}
	if s.Created != nil {
		rows = append(rows, [2]string{"created", fmt.Sprintf("%s [%s] #%d", s.Created.Name, s.Created.Type, s.Created.ID)})
	}
	if s.SelectedName != "" {
		rows = append(rows, [2]string{"selected", s.SelectedName})
	}
	if s.Pending != nil {
		rows = append(rows, [2]string{"pending", fmt.Sprintf("%s [%s] with %d attachment(s)", s.Pending.Request.Name, s.Pending.Request.Type, len(s.Pending.Attachments))})
	}
	printKV(rows)
	if s.PromptOpen() {
		fmt.Println()
		fmt.Println("similar ingredients already exist:")
		printCandidates(s.Candidates)
	}
}

func printCandidates(items []domain.SimilarIngredient) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			uintToString(item.Ingredient.ID),
			item.Ingredient.Name,
			fmt.Sprintf("%.0f%%", item.Similarity*100),
			formatMaybe(item.Ingredient.PurchaseFrequency),
			strconv.Itoa(item.Ingredient.StoreLocationsCount),
		})
	}
	printTable([]string{"ID", "NAME", "SIMILARITY", "FREQUENCY", "STORES"}, rows)
}

func printCheck(c rpcjson.EntityCheck) {
	if !c.Valid {
		fmt.Println("not allowed")
		return
	}
	rows := make([][]string, 0, len(c.Relationships))
	for _, r := range c.Relationships {
		rows = append(rows, []string{r.FromEntityType, r.RelationshipName, r.ToEntityType, r.RelationshipDescription})
	}
	printTable([]string{"FROM", "RELATIONSHIP", "TO", "DESCRIPTION"}, rows)
}

func printTypeLists(t rpcjson.TypeLists) {
	printKV([][2]string{
		{"creatable", strings.Join(t.Creatable, ", ")},
		{"display", strings.Join(t.Display, ", ")},
	})
}

func printListing(l rpcjson.Listing) {
	printKV([][2]string{
		{"tab", l.ActiveTab},
		{"query", l.Query},
		{"types", strings.Join(l.Types, ", ")},
	})
	fmt.Println()
	printEntities(l.Entities)
}

func printConfig(cfg config.Config) {
	rows := [][2]string{
		{"transport", cfg.Transport},
		{"server", cfg.Server},
		{"socket", cfg.Socket},
		{"timeout", cfg.Timeout.String()},
		{"log_level", cfg.LogLevel},
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	printKV(rows)
}
