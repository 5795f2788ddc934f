package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/gsyncd/internal/remote"
	"github.com/dl-alexandre/gsyncd/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Drive credentials",
}

var authTokenFile string

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an OAuth token for the Drive backend",
	Long: `Store an OAuth token obtained out of band. Reads the token JSON
from --token-file, or from stdin when the flag is omitted. The token
lands in the system keyring, or in a 0600 file on headless hosts.`,
	RunE: runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether usable credentials are stored",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored token",
	RunE:  runAuthLogout,
}

func init() {
	authLoginCmd.Flags().StringVar(&authTokenFile, "token-file", "", "Path to a token JSON file (default: stdin)")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

func tokenStore() remote.TokenStore {
	return remote.NewTokenStore(filepath.Dir(cfg.IndexPath))
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if authTokenFile != "" {
		data, err = os.ReadFile(authTokenFile)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return utils.NewSyncError(utils.CodeInvalidArgument, "token is not valid JSON").Build()
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return utils.NewSyncError(utils.CodeInvalidArgument, "token carries no credentials").Build()
	}

	store := tokenStore()
	if err := store.Save("default", &token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	out := NewOutputWriter()
	out.Log("Token stored in %s", store.Name())
	return out.WriteResult("auth.login", utils.CodeOK, map[string]string{"store": store.Name()})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	store := tokenStore()
	token, err := store.Load("default")

	status := map[string]interface{}{"store": store.Name()}
	code := utils.CodeOK
	if err != nil {
		status["authenticated"] = false
		code = utils.CodeAuthRequired
	} else {
		status["authenticated"] = true
		status["valid"] = token.Valid()
		if !token.Expiry.IsZero() {
			status["expiry"] = token.Expiry
		}
	}
	return NewOutputWriter().WriteResult("auth.status", code, status)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	store := tokenStore()
	if err := store.Delete("default"); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	out := NewOutputWriter()
	out.Log("Token removed from %s", store.Name())
	return out.WriteResult("auth.logout", utils.CodeOK, nil)
}
