// Command client talks to the UrbanEase API from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/PaulBabatuyi/urbanease/internal/client"
	"github.com/PaulBabatuyi/urbanease/internal/observability"
	"github.com/PaulBabatuyi/urbanease/internal/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type options struct {
	apiURL   string
	grpcAddr string
	token    string
	timeout  time.Duration
	verbose  bool

	logger *zap.Logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "urbanease",
		Short:         "Command line client for the UrbanEase API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.verbose {
				opts.logger = zap.NewNop()
				return nil
			}
			logger, err := observability.InitLogger(true)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", envOr("URBANEASE_API_URL", "http://localhost:8080"), "REST API base URL")
	flags.StringVar(&opts.grpcAddr, "grpc-addr", envOr("URBANEASE_GRPC_ADDR", "localhost:50051"), "gRPC server address")
	flags.StringVar(&opts.token, "token", os.Getenv("URBANEASE_TOKEN"), "bearer token")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests")

	root.AddCommand(
		newUploadCmd(opts),
		newUnreadCmd(opts),
		newBookingStatusCmd(opts),
		newMeCmd(opts),
	)
	return root
}

func (o *options) api() *client.Client {
	return client.New(o.apiURL,
		client.WithToken(o.token),
		client.WithLogger(o.logger),
		client.WithHTTPClient(&http.Client{Timeout: o.timeout}),
	)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stageFile(path string) (client.StagedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.StagedFile{}, err
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return client.StagedFile{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

func newUploadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload images to your portfolio in one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]client.StagedFile, 0, len(args))
			for _, path := range args {
				f, err := stageFile(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}

			uploader := client.NewPortfolioUploader(opts.api(), func(resp *client.PortfolioUploadResponse) {
				fmt.Fprintf(cmd.ErrOrStderr(), "uploaded %d file(s)\n", len(resp.Items))
			})
			if err := uploader.Select(files...); err != nil {
				return err
			}
			resp, err := uploader.Submit(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func newUnreadCmd(opts *options) *cobra.Command {
	var (
		userID  string
		useGRPC bool
	)
	cmd := &cobra.Command{
		Use:   "unread",
		Short: "Show the unread message badge for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var source client.CountSource = opts.api()
			if useGRPC {
				conn, err := grpc.NewClient(opts.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
				if err != nil {
					return fmt.Errorf("failed to connect: %w", err)
				}
				defer conn.Close()
				source = rpc.NewNotificationClient(conn, opts.token)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			poller := client.NewUnreadPoller(source, opts.logger)
			defer poller.Close()
			poller.SetUser(ctx, userID)
			poller.Wait()
			if err := poller.Err(); err != nil {
				return fmt.Errorf("failed to fetch unread count: %w", err)
			}

			badge := poller.Badge()
			if badge == "" {
				badge = "no unread messages"
			}
			fmt.Fprintln(cmd.OutOrStdout(), badge)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	cmd.Flags().BoolVar(&useGRPC, "grpc", false, "query over gRPC instead of REST")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newBookingStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "booking-status <messageId> <status>",
		Short: "Update the booking status on a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.api().UpdateBookingStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func newMeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the navigation view for the current token",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.api().Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}
