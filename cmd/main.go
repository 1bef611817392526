// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/saferwall/clrimage"
	"github.com/spf13/cobra"
)

func main() {
	var refOnly bool

	rootCmd := &cobra.Command{
		Use:   "clrimage",
		Short: "A CLI managed-code image loader",
		Long:  "Loads CLI (Common Language Infrastructure) managed-code images and dumps their PE/COFF and metadata structure",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("You are using version 0.1.0")
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <path>",
		Short: "Dumps identity, CLI header, module graph and certificate summary of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dump(args[0], refOnly)
		},
	}
	dumpCmd.Flags().BoolVar(&refOnly, "ref-only", false, "open the image in reflection-only mode")

	rootCmd.AddCommand(versionCmd, dumpCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dump(path string, refOnly bool) error {
	cache := clrimage.NewCache(&clrimage.Options{RefOnly: refOnly})
	img, err := cache.Open(path, refOnly)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer cache.Close(img)

	w := tabwriter.NewWriter(os.Stdout, 1, 1, 3, ' ', tabwriter.AlignRight)

	fmt.Printf("\n\t------[ %s ]------\n\n", img.Name())
	fmt.Fprintf(w, "Module Name:\t %s\n", img.Name())
	fmt.Fprintf(w, "Assembly Name:\t %s\n", img.AssemblyName())
	fmt.Fprintf(w, "GUID:\t %s\n", img.GUID())
	fmt.Fprintf(w, "Entry Point Token:\t 0x%x\n", img.EntryPoint())
	fmt.Fprintf(w, "Is Dynamic:\t %v\n", img.IsDynamic())
	fmt.Fprintf(w, "Is Reflection-Only:\t %v\n", img.IsRefOnly())
	fmt.Fprintf(w, "Module Count:\t %d\n", img.ModuleCount())
	fmt.Fprintf(w, "File Count:\t %d\n", img.FileCount())
	fmt.Fprintf(w, "Has Authenticode Entry:\t %v\n", img.HasAuthenticodeEntry())
	fmt.Fprintf(w, "Has Overlay:\t %v\n", img.HasOverlay())

	if pk := img.PublicKey(); len(pk) > 0 {
		fmt.Fprintf(w, "Public Key:\t %s\n", hex.EncodeToString(pk))
	}
	if sn := img.StrongName(); len(sn) > 0 {
		fmt.Fprintf(w, "Strong Name Signature Size:\t 0x%x\n", len(sn))
	}
	w.Flush()

	if len(img.Anomalies) > 0 {
		fmt.Print("\n\t------[ Anomalies ]------\n\n")
		for _, a := range img.Anomalies {
			fmt.Printf("  - %s\n", a)
		}
	}

	certs, err := img.Certificates()
	if err != nil {
		return err
	}
	if len(certs) > 0 {
		fmt.Print("\n\t------[ Certificates ]------\n\n")
		for _, c := range certs {
			fmt.Printf("Revision: 0x%x  Type: 0x%x  Length: 0x%x\n",
				c.Header.Revision, c.Header.CertificateType, c.Header.Length)
			for _, signer := range c.Signers {
				fmt.Printf("  issuer=%s subject=%s serial=%s\n",
					signer.Issuer, signer.Subject, signer.SerialNumber)
			}
		}
	}

	return nil
}
