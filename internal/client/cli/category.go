package cli

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Categories prints every category with its document count.
func (a *App) Categories(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	cats, err := a.store.ListCategoriesWithCount(ctx)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	for _, c := range cats {
		fmt.Printf("%s  %-20s %d\n", c.ID, c.Name, c.DocumentCount)
	}
	return nil
}

// AddCategory prompts for a name and creates the category.
func (a *App) AddCategory(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	name, err := getSimpleText(a.reader, "Enter category name", os.Stdout)
	if err != nil {
		return err
	}

	cat, err := a.store.CreateCategory(ctx, name, nil)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Printf("Created %s (%s)\n", cat.Name, cat.ID)
	return nil
}

// RenameCategory prompts for a category id and a new name.
func (a *App) RenameCategory(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	id, err := getSimpleText(a.reader, "Enter category id", os.Stdout)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter new name", os.Stdout)
	if err != nil {
		return err
	}

	cat, err := a.store.RenameCategory(ctx, id, name)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Printf("Renamed to %s\n", cat.Name)
	return nil
}

// RemoveCategory prompts for a category id and deletes it. The category's
// documents move to the default category unless a reassignment target is
// given.
func (a *App) RemoveCategory(ctx context.Context) error {
	if a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	id, err := getSimpleText(a.reader, "Enter category id", os.Stdout)
	if err != nil {
		return err
	}
	reassignTo, err := getSimpleText(a.reader, "Reassign documents to (empty for default)", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.store.DeleteCategory(ctx, id, reassignTo); err != nil {
		log.Printf("error: %v", err)
		return err
	}
	fmt.Println("Deleted.")
	return nil
}
