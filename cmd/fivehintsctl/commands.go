package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/match"
	"github.com/playperu/fivehints/internal/token"
)

func newMintCmd(cfg *Config) *cobra.Command {
	var (
		file  string
		ttl   time.Duration
		daily bool
	)

	cmd := &cobra.Command{
		Use:   "mint -f challenge.json",
		Short: "Sign an authored challenge into a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := cfg.codec()
			if err != nil {
				return err
			}
			ch, err := readChallenge(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			var exp time.Time
			if daily {
				ch.IsDaily = true
				ch.Exp = 0
			} else if ttl > 0 {
				exp = time.Now().Add(ttl)
			}

			tok, err := codec.Mint(ch, exp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			okColor.Fprintf(cmd.ErrOrStderr(), "minted %s (%s)\n", ch.ID, ch.Type)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&file, "file", "f", "-", "challenge JSON file, - for stdin")
	fs.DurationVar(&ttl, "ttl", 7*24*time.Hour, "token lifetime, 0 for no expiry")
	fs.BoolVar(&daily, "daily", false, "mint a daily challenge token without expiry")

	return cmd
}

// readChallenge loads a challenge and fills in what authoring tools usually
// leave out.
func readChallenge(stdin io.Reader, file string) (fivehints.Challenge, error) {
	var ch fivehints.Challenge

	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return ch, err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&ch); err != nil {
		return ch, fmt.Errorf("decoding challenge: %w", err)
	}

	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.CreatedAt == 0 {
		ch.CreatedAt = time.Now().Unix()
	}
	ch.Target = strings.TrimSpace(ch.Target)
	ch.Aliases = match.EnsureAliases(ch.Target, ch.Aliases)
	return ch, nil
}

func newVerifyCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a token's signature and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := cfg.codec()
			if err != nil {
				return err
			}
			p, err := codec.Verify(args[0])
			if err != nil {
				failColor.Fprintf(cmd.ErrOrStderr(), "%s\n", fivehints.CodeOf(err))
				return err
			}

			out := cmd.OutOrStdout()
			okColor.Fprintln(out, "valid")
			printField(out, "id", p.ID)
			printField(out, "type", string(p.Type))
			printField(out, "target", p.Target)
			printField(out, "daily", fmt.Sprint(p.IsDaily))
			if p.Exp != 0 {
				printField(out, "expires", p.ExpiresAt().Format(time.RFC3339))
			} else {
				printField(out, "expires", "never")
			}
			return nil
		},
	}
}

func newInspectCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Print the public view of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := token.Decode(args[0])
			if err != nil {
				return err
			}

			if cfg.secret != "" {
				codec, err := cfg.codec()
				if err != nil {
					return err
				}
				if _, err := codec.Verify(args[0]); err != nil {
					failColor.Fprintf(cmd.ErrOrStderr(), "signature: %s\n", fivehints.CodeOf(err))
				} else {
					okColor.Fprintln(cmd.ErrOrStderr(), "signature: valid")
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(token.PublicView(p))
		},
	}
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <text...>",
		Short: "Show how a guess is normalized before matching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), match.Normalize(strings.Join(args, " ")))
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random 32-byte signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(b))
			return nil
		},
	}
}

func printField(w io.Writer, key, value string) {
	keyColor.Fprintf(w, "%-8s", key)
	fmt.Fprintln(w, value)
}
