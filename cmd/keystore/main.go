// Command keystore creates and checks encrypted Solana operator keys.
package main

import (
	"fmt"
	"os"

	"liquidityreward/pkg/ledger/solana"

	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dirFlag := flag.String("dir", solana.DefaultKeystoreDir, "keystore directory")
	generateFlag := flag.Bool("generate", false, "generate a new operator key")
	checkFlag := flag.String("check", "", "decrypt the key of this address to verify the password")
	flag.Parse()

	password := os.Getenv("SOLANA_KEYSTORE_PASSWORD")
	if password == "" {
		return fmt.Errorf("SOLANA_KEYSTORE_PASSWORD is not set")
	}
	ks := solana.NewKeystore(*dirFlag)

	switch {
	case *generateFlag:
		account := ks.Generate()
		path, err := ks.Save(account, password)
		if err != nil {
			return err
		}
		fmt.Printf("address: %s\nkeystore: %s\n", account.PublicKey.ToBase58(), path)
	case *checkFlag != "":
		account, err := ks.Load(*checkFlag, password)
		if err != nil {
			return err
		}
		fmt.Printf("ok: %s\n", account.PublicKey.ToBase58())
	default:
		flag.Usage()
	}
	return nil
}
