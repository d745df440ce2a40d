package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const signingSecretBytes = 32

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new random session signing secret",
		Long: `Print a new random session signing secret as hex. Add it under a new key id in
signature.keys and switch signature.active_kid to rotate keys.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := newSigningSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}

func newSigningSecret() (string, error) {
	b := make([]byte, signingSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[keygen] rand.Read")
	}
	return hex.EncodeToString(b), nil
}
