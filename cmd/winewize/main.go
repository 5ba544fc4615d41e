package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/winewize/internal/api"
	"github.com/pbaille/winewize/internal/domain"
	"github.com/pbaille/winewize/internal/pairing"
	"github.com/pbaille/winewize/internal/scan"
	"github.com/pbaille/winewize/internal/sommelier"
	"github.com/pbaille/winewize/internal/store"
	"github.com/pbaille/winewize/pkg/logger"
)

var (
	dbPath     string
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "winewize",
		Short:        "Photograph a menu and a wine list, get pairings",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default ~/.winewize/winewize.db)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(pairCmd())
	rootCmd.AddCommand(winesCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(restaurantsCmd())
	rootCmd.AddCommand(resetCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if a.memory != nil {
				go a.memory.RunJanitor(ctx, a.cfg.Cache.PruneInterval)
			}

			sessions := a.sessions(false)
			server := api.New(api.Deps{
				Store:    a.store,
				Sessions: sessions,
				Scanner:  a.scanner(),
				Pairing:  a.pairing(sessions),
				Logger:   a.log.Named("api"),
			}, a.cfg.Server.Addr, a.cfg.Metrics.Enabled)
			if err := server.Run(ctx); err != nil {
				logger.Error("server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (default :8080)")
	return cmd
}

func scanCmd() *cobra.Command {
	var sessionID, restaurant string

	cmd := &cobra.Command{
		Use:   "scan [image|url]...",
		Short: "Read dishes and wines from photos or a published wine list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			scanner := a.scanner()
			if scanner == nil {
				return fmt.Errorf("scan needs ANTHROPIC_API_KEY")
			}

			var images []sommelier.Image
			var urls []string
			for _, arg := range args {
				if scan.IsURL(arg) {
					urls = append(urls, arg)
					continue
				}
				img, err := readImage(arg)
				if err != nil {
					return err
				}
				images = append(images, img)
			}

			var results []*scan.Result
			if len(images) > 0 {
				fmt.Printf("Reading %d image(s)... ", len(images))
				res, err := scanner.Scan(ctx, images)
				if err != nil {
					fmt.Println("failed")
					return err
				}
				fmt.Printf("done (%d read, %d skipped)\n", res.Processed, res.Failed)
				results = append(results, res)
			}
			for _, u := range urls {
				res, err := scanner.ScanURL(ctx, u)
				if err != nil {
					fmt.Printf("  warning: %s: %v\n", u, err)
					continue
				}
				results = append(results, res)
			}

			merged := scan.Merge(results...)
			bundle := domain.SessionBundle{
				MenuItems:      merged.MenuItems,
				Wines:          merged.Wines,
				RestaurantName: strings.TrimSpace(restaurant),
			}
			if bundle.RestaurantName == "" {
				bundle.RestaurantName = merged.RestaurantName
			}
			if bundle.RestaurantName != "" {
				r, err := a.store.GetOrCreateRestaurant(ctx, bundle.RestaurantName)
				if err != nil {
					return err
				}
				bundle.MenuItems, bundle.Wines, err = a.store.SaveMenu(ctx, r.ID, bundle.MenuItems, bundle.Wines)
				if err != nil {
					return err
				}
				bundle.RestaurantID = r.ID
				bundle.RestaurantName = r.Name
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			saved, err := a.sessions(true).Save(ctx, sessionID, bundle)
			if err != nil {
				return err
			}

			fmt.Printf("Session: %s\n", sessionID)
			if saved.RestaurantName != "" {
				fmt.Printf("Restaurant: %s\n", saved.RestaurantName)
			}
			printMenu(saved.MenuItems)
			printWines(saved.Wines)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: new)")
	cmd.Flags().StringVarP(&restaurant, "restaurant", "r", "", "restaurant name")
	return cmd
}

func pairCmd() *cobra.Command {
	var (
		sessionID   string
		dishes      []string
		wines       []string
		preferences string
	)

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Recommend wines for the selected dishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sessions := a.sessions(true)
			req := pairing.Request{SessionID: sessionID, Preferences: preferences}
			for _, d := range dishes {
				req.Dishes = append(req.Dishes, domain.MenuItem{Name: d})
			}
			for _, w := range wines {
				req.Wines = append(req.Wines, domain.Wine{Name: w})
			}
			if b, ok := sessions.Bundle(ctx, sessionID); ok {
				req.RestaurantID = b.RestaurantID
			}

			res, err := a.pairing(sessions).Recommend(ctx, req)
			if err != nil {
				return err
			}

			note := ""
			if res.Cached {
				note = ", cached"
			}
			fmt.Printf("%d wine(s) from %s%s\n\n", res.WineCount, res.WineSource, note)
			for _, p := range res.Pairings {
				fmt.Printf("%s\n  -> %s (%.0f%%)\n     %s\n", p.Dish, p.Wine, p.Score*100, truncate(p.Reason, 100))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id")
	cmd.Flags().StringArrayVarP(&dishes, "dish", "d", nil, "selected dish (repeatable)")
	cmd.Flags().StringArrayVarP(&wines, "wine", "w", nil, "wine to choose from instead of the session's list (repeatable)")
	cmd.Flags().StringVarP(&preferences, "prefs", "p", "", "preferences, e.g. \"no oak, under 60\"")
	_ = cmd.MarkFlagRequired("dish")
	return cmd
}

func winesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wines [session]",
		Short: "Show the wines a session would pair from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			wines, source := a.sessions(true).Wines(ctx, args[0], nil)
			if len(wines) == 0 {
				fmt.Println("No wines for this session. Use 'winewize scan' first.")
				return nil
			}
			fmt.Printf("Source: %s\n", source)
			printWines(wines)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session]",
		Short: "List past pairings for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			pairings, err := a.store.ListPairings(ctx, store.PairingFilter{SessionID: args[0], Limit: limit})
			if err != nil {
				return err
			}
			if len(pairings) == 0 {
				fmt.Println("No pairings yet.")
				return nil
			}
			for _, p := range pairings {
				fmt.Printf("%s  %s -> %s\n", p.CreatedAt.Format("2006-01-02 15:04"), p.Dish, p.Wine)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of pairings to show")
	return cmd
}

func restaurantsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "restaurants",
		Short: "List restaurants with a saved menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			restaurants, err := a.store.ListRestaurants(ctx, limit, 0)
			if err != nil {
				return err
			}
			if len(restaurants) == 0 {
				fmt.Println("No restaurants yet.")
				return nil
			}
			for _, r := range restaurants {
				fmt.Printf("%s  %s\n", r.ID[:8], r.Name)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of restaurants to show")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [session]",
		Short: "Forget a session's menu and wines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.sessions(true).Clear(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("Session cleared.")
			return nil
		},
	}
}

func readImage(path string) (sommelier.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sommelier.Image{}, err
	}
	mediaType := http.DetectContentType(data)
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		return sommelier.Image{}, fmt.Errorf("%s: unsupported image type %s", path, mediaType)
	}
	return sommelier.Image{MediaType: mediaType, Data: data}, nil
}

func printMenu(items []domain.MenuItem) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\nMenu:\n")
	for _, it := range items {
		fmt.Printf("  [%s] %s\n", it.Category, it.Name)
	}
}

func printWines(wines []domain.Wine) {
	if len(wines) == 0 {
		return
	}
	fmt.Printf("\nWines:\n")
	for _, w := range wines {
		line := w.Name
		if w.Vintage != "" {
			line += " " + w.Vintage
		}
		if w.Price > 0 {
			line += fmt.Sprintf("  %.2f", w.Price)
		}
		fmt.Printf("  - %s\n", line)
	}
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
