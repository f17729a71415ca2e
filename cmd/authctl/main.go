// Command authctl manages accounts directly against the configured storage
// backend, bypassing the HTTP API. Useful to bootstrap an admin or to
// recover a locked-out account.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

func usage() {
	fmt.Println("usage: authctl <register|set-password> [flags]")
	fmt.Println("flags are the server storage flags (-k, -d, -r, -o)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	ctx := context.Background()
	cfg := config.LoadConfig()

	factory, closeStorage, err := server.NewFactory(ctx, cfg)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	defer closeStorage()

	service := users.NewService(factory)

	switch command {
	case "register":
		err = register(ctx, service)
	case "set-password":
		err = setPassword(ctx, service)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	fmt.Println("Success!")
}

func getSimpleText(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Println(prompt)
	text, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func getPassword() (string, error) {
	fmt.Println("Enter password")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func register(ctx context.Context, service *users.Service) error {
	reader := bufio.NewReader(os.Stdin)

	username, err := getSimpleText(reader, "Enter user name")
	if err != nil {
		return err
	}
	email, err := getSimpleText(reader, "Enter email")
	if err != nil {
		return err
	}
	admin, err := getSimpleText(reader, "Grant admin role? (y/N)")
	if err != nil {
		return err
	}
	password, err := getPassword()
	if err != nil {
		return err
	}

	roles := []string{"user"}
	if strings.EqualFold(admin, "y") {
		roles = append(roles, "admin")
	}

	return service.Register(ctx, &models.User{
		Username: username,
		Email:    email,
		Password: password,
		Roles:    roles,
	})
}

func setPassword(ctx context.Context, service *users.Service) error {
	reader := bufio.NewReader(os.Stdin)

	username, err := getSimpleText(reader, "Enter user name")
	if err != nil {
		return err
	}

	user, err := service.Get(ctx, username)
	if err != nil {
		return err
	}

	password, err := getPassword()
	if err != nil {
		return err
	}

	user.Password = password
	user.HashedPassword = ""
	user.ResetCode = ""
	user.ResetCodeExp = nil
	return service.Update(ctx, username, user)
}
