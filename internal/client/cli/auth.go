package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/store"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for an account name and password and creates a new
// account on the server. The password bytes are wiped before returning.
func (a *App) Register(ctx context.Context) error {
	if !a.isRemote() {
		fmt.Println("Local mode needs no account.")
		return nil
	}

	account, err := getSimpleText(a.reader, "Enter account name", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.remote.Register(ctx, account, string(password)); err != nil {
		log.Printf("Registration failed: %s", err.Error())
		return err
	}

	fmt.Println("Account created, you can now log in.")
	return nil
}

// Login authenticates against the server and attaches the remote store with
// its offline mirror for the tenant the server reports.
func (a *App) Login(ctx context.Context) error {
	if !a.isRemote() {
		fmt.Println("Local mode needs no login.")
		return nil
	}

	account, err := getSimpleText(a.reader, "Enter account name", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	data, err := a.remote.Login(ctx, account, string(password))
	if err != nil {
		log.Printf("Login failed: %s", err.Error())
		return err
	}

	s, err := a.registry.Get(ctx, store.ModeRemote, data.UID)
	if err != nil {
		log.Printf("Store init failed: %s", err.Error())
		return err
	}

	a.store = s
	a.uid = data.UID
	a.userName = data.Account
	fmt.Println("Logged in.")
	return nil
}

// Logout revokes the session and detaches (closing) the tenant's store.
func (a *App) Logout(ctx context.Context) error {
	if !a.isRemote() || a.store == nil {
		return nil
	}

	if err := a.remote.Logout(ctx); err != nil {
		log.Printf("Logout failed: %s", err.Error())
	}
	if err := a.registry.Invalidate(store.ModeRemote, a.uid); err != nil {
		log.Printf("Store close failed: %s", err.Error())
	}

	a.store = nil
	a.uid = 0
	a.userName = ""
	fmt.Println("Logged out.")
	return nil
}

// ChangePassword prompts for the current and a new password. The server
// revokes every session on success, so the user is logged out afterwards.
func (a *App) ChangePassword(ctx context.Context) error {
	if !a.isRemote() || a.store == nil {
		fmt.Println("Log in first.")
		return nil
	}

	fmt.Println("Current password:")
	current, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)

	fmt.Println("New password:")
	next, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	if err := a.remote.ChangePassword(ctx, string(current), string(next)); err != nil {
		log.Printf("Password change failed: %s", err.Error())
		return err
	}

	fmt.Println("Password changed, please log in again.")
	return a.Logout(ctx)
}
