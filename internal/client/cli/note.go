package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/plainlyhq/plainly-core/internal/store"
)

const listPageSize = 20

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

// List prints the newest documents, one page at a time.
func (a *App) List(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	offset := 0
	for {
		page, err := a.store.ListDocumentsPage(ctx, offset, listPageSize)
		if err != nil {
			log.Printf("error: %v", err)
			return err
		}
		for _, d := range page.Documents {
			fmt.Printf("%s  %-30s %s\n", d.ID, d.Name, formatMillis(d.UpdatedAt))
		}
		if !page.HasMore {
			return nil
		}

		more, err := getSimpleText(a.reader, "More? (y/n)", os.Stdout)
		if err != nil || more != "y" {
			return nil
		}
		offset += listPageSize
	}
}

// AddNote prompts for a name, an optional category id and a multi-line body,
// then creates the document.
func (a *App) AddNote(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	name, err := getSimpleText(a.reader, "Enter note name", os.Stdout)
	if err != nil {
		return err
	}
	categoryID, err := getSimpleText(a.reader, "Enter category id (empty for default)", os.Stdout)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Enter note text:", os.Stdout)
	if err != nil {
		return err
	}

	doc, err := a.store.CreateDocument(ctx, store.NewDocument{Name: name, CategoryID: categoryID}, body)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Printf("Created %s (%s)\n", doc.Name, doc.ID)
	return nil
}

// Show prompts for a document id and prints its metadata and body.
func (a *App) Show(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	id, err := getSimpleText(a.reader, "Enter document id", os.Stdout)
	if err != nil {
		return err
	}

	meta, err := a.store.GetDocumentMeta(ctx, id)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	if meta == nil {
		fmt.Println("Not found.")
		return nil
	}
	meta, err = a.store.EnsureDocumentCharCount(ctx, meta)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	content, err := a.store.GetDocumentContent(ctx, meta.ID)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("%s\ncategory: %s\nupdated:  %s\n", meta.Name, meta.CategoryID, formatMillis(meta.UpdatedAt))
	if meta.CharCount != nil {
		fmt.Printf("chars:    %d\n", *meta.CharCount)
	}
	fmt.Println("---")
	if content != nil {
		fmt.Println(*content)
	}
	return nil
}

// Search prompts for search terms and prints matching documents. Every term
// must match; the match is case-insensitive over name and body.
func (a *App) Search(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	terms, err := getSimpleText(a.reader, "Enter search terms", os.Stdout)
	if err != nil {
		return err
	}

	page, err := a.store.SearchDocuments(ctx, store.SearchQuery{
		Tokens: strings.Fields(terms),
		Limit:  listPageSize,
	})
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	for _, d := range page.Documents {
		fmt.Printf("%s  %-30s %s\n", d.ID, d.Name, formatMillis(d.UpdatedAt))
	}
	fmt.Printf("%d match(es)\n", page.Total)
	return nil
}

// Remove prompts for a document id and deletes it.
func (a *App) Remove(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	id, err := getSimpleText(a.reader, "Enter document id", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.store.DeleteDocument(ctx, id); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Println("Deleted.")
	return nil
}
