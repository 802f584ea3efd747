package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/outpost-run/outpost-go/pkg/lfs"
	"github.com/spf13/cobra"
)

var (
	lfsScope  string
	lfsRef    string
	lfsExtras []string
	lfsOutput string

	lfsCmd = &cobra.Command{
		Use:   "lfs",
		Short: "Move large files to and from a repository",
	}

	lfsOidCmd = &cobra.Command{
		Use:   "oid FILE",
		Short: "Print the pointer of a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close() // nolint: errcheck

			attrs, err := lfs.GetObjectAttributes(f)
			if err != nil {
				return fmt.Errorf("hash %s: %w", args[0], err)
			}

			return printPointer(cmd, attrs)
		},
	}

	lfsUploadCmd = &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file and print its pointer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := lfs.ParseScope(lfsScope)
			if err != nil {
				return err
			}
			extras, err := parseExtras(lfsExtras)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close() // nolint: errcheck

			var total int64
			if fi, err := f.Stat(); err == nil {
				total = fi.Size()
			}
			var sent int64
			attrs, err := newLFSClient(cmd).Upload(cmd.Context(), f, scope, &lfs.UploadOptions{
				Extras: extras,
				Ref:    lfsRef,
				OnProgress: func(n int64) {
					sent += n
					fmt.Fprintf(cmd.ErrOrStderr(), "uploaded %s / %s\n",
						humanize.Bytes(uint64(sent)), humanize.Bytes(uint64(total))) //nolint:gosec
				},
			})
			if err != nil {
				return err
			}

			return printPointer(cmd, attrs)
		},
	}

	lfsDownloadCmd = &cobra.Command{
		Use:   "download POINTER",
		Short: "Download the object named by a pointer file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := lfs.ParseScope(lfsScope)
			if err != nil {
				return err
			}

			pf, err := os.Open(args[0])
			if err != nil {
				return err
			}
			p, err := lfs.ReadPointer(pf)
			pf.Close() // nolint: errcheck
			if err != nil {
				return fmt.Errorf("read pointer %s: %w", args[0], err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if lfsOutput != "" && lfsOutput != "-" {
				out, err := os.Create(lfsOutput)
				if err != nil {
					return err
				}
				defer out.Close() // nolint: errcheck
				w = out
			}

			cw := &countingWriter{w: w}
			if err := newLFSClient(cmd).Download(cmd.Context(), cw, p.Oid, p.Size, scope, &lfs.DownloadOptions{Ref: lfsRef}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "downloaded %s\n", humanize.Bytes(uint64(cw.n))) //nolint:gosec

			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{lfsUploadCmd, lfsDownloadCmd} {
		cmd.Flags().StringVarP(&lfsScope, "scope", "s", "", "repository as organization/repo_type/repo")
		cmd.Flags().StringVar(&lfsRef, "ref", "", "git reference the object belongs to")
		cmd.MarkFlagRequired("scope") // nolint: errcheck
	}
	lfsUploadCmd.Flags().StringArrayVar(&lfsExtras, "x", nil, "extra object attribute as key=value")
	lfsDownloadCmd.Flags().StringVarP(&lfsOutput, "output", "o", "", "write the object to this file instead of stdout")

	lfsCmd.AddCommand(
		lfsOidCmd,
		lfsUploadCmd,
		lfsDownloadCmd,
	)
}

func printPointer(cmd *cobra.Command, attrs lfs.ObjectAttributes) error {
	if ojson {
		return writeJSON(cmd.OutOrStdout(), attrs)
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), attrs.Pointer.String())
	return err
}

func parseExtras(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	extras := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.New("extra attributes must be key=value, got " + kv)
		}
		extras[k] = v
	}
	return extras, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
