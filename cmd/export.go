package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memoria/internal/backup"
)

func exportCmd() *cobra.Command {
	var (
		project, category, out string
		s3opts                 backup.S3Options
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a project's memories as JSON Lines (file, stdout or S3)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, cleanup, err := openService(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := backup.Options{ProjectID: project, Category: category}

			if s3opts.Bucket != "" {
				s3opts.AccessKeyID = os.Getenv("MEMORIA_S3_ACCESS_KEY_ID")
				s3opts.SecretAccessKey = os.Getenv("MEMORIA_S3_SECRET_ACCESS_KEY")
				if s3opts.Key == "" {
					s3opts.Key = project + ".jsonl"
				}
				up, err := backup.NewS3Uploader(ctx, s3opts)
				if err != nil {
					return err
				}
				n, err := backup.ExportToS3(ctx, svc, opts, up, s3opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Exported %d memories to s3://%s/%s\n", n, s3opts.Bucket, s3opts.Key)
				return nil
			}

			var w io.Writer = os.Stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			n, err := backup.Export(ctx, svc, opts, bw)
			if err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported %d memories\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id (required)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&s3opts.Bucket, "s3-bucket", "", "upload to this S3 bucket instead of a file")
	cmd.Flags().StringVar(&s3opts.Key, "s3-key", "", "object key (default <project>.jsonl)")
	cmd.Flags().StringVar(&s3opts.Region, "s3-region", "", "bucket region (default from the AWS config chain)")
	cmd.Flags().StringVar(&s3opts.Endpoint, "s3-endpoint", "", "custom endpoint for S3-compatible stores")
	cmd.Flags().BoolVar(&s3opts.UsePathStyle, "s3-path-style", false, "use path-style addressing (MinIO)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
