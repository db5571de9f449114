package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"registrar/internal/domain/eav"
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

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func documentRows(doc *eav.Document) [][2]string {
	rows := [][2]string{
		{"id", fmt.Sprint(doc.ID)},
		{"type", doc.EntityType},
	}
	if doc.NaturalKey != nil {
		rows = append(rows, [2]string{"natural_key", *doc.NaturalKey})
	}
	rows = append(rows,
		[2]string{"created_at", formatValue(doc.CreatedAt)},
		[2]string{"updated_at", formatValue(doc.UpdatedAt)},
	)

	names := make([]string, 0, len(doc.Attributes))
	for name := range doc.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, [2]string{"  " + name, formatValue(doc.Attributes[name])})
	}
	return rows
}

func printDocument(doc *eav.Document) {
	printKV(documentRows(doc))
}

func printPage(page eav.Page) {
	for i, doc := range page.Entities {
		if i > 0 {
			fmt.Println()
		}
		printDocument(doc)
	}
	fmt.Printf("\npage %d/%d, %d total\n", page.Page, page.TotalPages, page.Total)
	if len(page.Ignored) > 0 {
		fmt.Printf("ignored filters: %s\n", strings.Join(page.Ignored, ", "))
	}
}

func printAttributes(defs []eav.AttributeDefinition) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tREQUIRED\tUNIQUE\tLABEL")
	for _, d := range defs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\n", d.ID, d.Name, d.DataType, d.IsRequired, d.IsUnique, d.Label)
	}
	_ = w.Flush()
}
