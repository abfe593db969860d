package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/darkpool-labs/ciphermatch/pkg/crypto"
)

// sign-cancel produces the signed cancel request body for an order.
// With -key it signs as an existing owner; without it a fresh keypair
// is generated (useful for exercising the rejection path).

func main() {
	var (
		orderID = flag.String("order", "", "order id to cancel")
		keyHex  = flag.String("key", "", "owner private key hex (generated if empty)")
	)
	flag.Parse()

	if *orderID == "" {
		fmt.Fprintln(os.Stderr, "usage: sign-cancel -order <id> [-key <hex>]")
		os.Exit(1)
	}

	var signer *crypto.Signer
	var err error
	if *keyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	} else {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Printf("Generated key for %s (KEEP SECRET!)\n", signer.Address().Hex())
			fmt.Printf("Private Key: %s\n\n", signer.PrivateKeyHex())
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "key error: %v\n", err)
		os.Exit(1)
	}

	sig, err := signer.Sign(crypto.CancelDigest(*orderID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing error: %v\n", err)
		os.Exit(1)
	}

	body, _ := json.MarshalIndent(map[string]string{
		"orderId":   *orderID,
		"signature": hexutil.Encode(sig),
	}, "", "  ")

	fmt.Printf("Signer: %s\n", signer.Address().Hex())
	fmt.Printf("POST /api/v1/orders/cancel\n%s\n", body)
}
