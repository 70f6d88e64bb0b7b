package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/libreg/keys"
)

// signerFlags selects a signing seed and algorithm.
type signerFlags struct {
	keyDir  string
	name    string
	role    string
	seedHex string
	keyFile string
	alg     string
	hash    string
}

func (f *signerFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.keyDir, "key-dir", "", "key store directory (default ~/.xdao/libreg/keys)")
	fl.StringVar(&f.name, "key-name", "", "stored key name")
	fl.StringVar(&f.role, "role", "", "derived role under --key-name")
	fl.StringVar(&f.seedHex, "seed-hex", "", "signing seed as 64 hex chars")
	fl.StringVar(&f.keyFile, "key-file", "", "file holding a hex seed")
	fl.StringVar(&f.alg, "alg", keys.AlgEd25519, "signature algorithm (ed25519, dilithium3)")
	fl.StringVar(&f.hash, "hash", keys.HashSHA256, "digest signed (sha256, sha512, sha3-256)")
}

func (f *signerFlags) signer() (keys.Signer, error) {
	ks, err := keys.OpenStore(f.keyDir)
	if err != nil {
		return nil, err
	}
	seed, err := ks.LoadSeed(f.seedHex, f.keyFile, f.name, f.role)
	if err != nil {
		return nil, err
	}
	return keys.NewSigner(f.alg, seed)
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage local owner keys",
	}
	var keyDir string
	cmd.PersistentFlags().StringVar(&keyDir, "key-dir", "", "key store directory (default ~/.xdao/libreg/keys)")

	var (
		initName  string
		initSeed  string
		initForce bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a root seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := keys.OpenStore(keyDir)
			if err != nil {
				return err
			}
			var seed []byte
			if initSeed != "" {
				if seed, err = keys.ParseSeedHex(initSeed); err != nil {
					return fmt.Errorf("invalid --seed-hex: %w", err)
				}
			} else {
				seed = make([]byte, ed25519.SeedSize)
				if _, err := rand.Read(seed); err != nil {
					return err
				}
			}
			path, err := ks.Init(initName, seed, initForce)
			if err != nil {
				return err
			}
			owner, err := keys.OwnerKeyFromSeed(keys.AlgEd25519, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created root key: %s\nStored at: %s\n", owner, path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initName, "name", "", "key name")
	initCmd.Flags().StringVar(&initSeed, "seed-hex", "", "optional seed as 64 hex chars (reproducible demos)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing key")
	_ = initCmd.MarkFlagRequired("name")

	var (
		deriveFrom  string
		deriveRole  string
		deriveForce bool
	)
	deriveCmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a role seed from a root seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := keys.OpenStore(keyDir)
			if err != nil {
				return err
			}
			path, err := ks.Derive(deriveFrom, deriveRole, deriveForce)
			if err != nil {
				return err
			}
			seed, err := ks.Seed(deriveFrom, deriveRole)
			if err != nil {
				return err
			}
			owner, err := keys.OwnerKeyFromSeed(keys.AlgEd25519, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created role key: %s\nStored at: %s\n", owner, path)
			return nil
		},
	}
	deriveCmd.Flags().StringVar(&deriveFrom, "from", "", "root key name")
	deriveCmd.Flags().StringVar(&deriveRole, "role", "", "role, usually the application id or \"admin\"")
	deriveCmd.Flags().BoolVar(&deriveForce, "force", false, "overwrite an existing key")
	_ = deriveCmd.MarkFlagRequired("from")
	_ = deriveCmd.MarkFlagRequired("role")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys and roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := keys.OpenStore(keyDir)
			if err != nil {
				return err
			}
			entries, err := ks.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintln(out, e.Name)
				for _, r := range e.Roles {
					fmt.Fprintf(out, "  - %s\n", r)
				}
			}
			return nil
		},
	}

	var (
		showName string
		showRole string
		showAlg  string
	)
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the owner key of a stored seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := keys.OpenStore(keyDir)
			if err != nil {
				return err
			}
			seed, err := ks.Seed(showName, showRole)
			if err != nil {
				return err
			}
			owner, err := keys.OwnerKeyFromSeed(showAlg, seed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), owner)
			return nil
		},
	}
	showCmd.Flags().StringVar(&showName, "name", "", "key name")
	showCmd.Flags().StringVar(&showRole, "role", "", "derived role")
	showCmd.Flags().StringVar(&showAlg, "alg", keys.AlgEd25519, "algorithm (ed25519, dilithium3)")
	_ = showCmd.MarkFlagRequired("name")

	cmd.AddCommand(initCmd, deriveCmd, listCmd, showCmd)
	return cmd
}
