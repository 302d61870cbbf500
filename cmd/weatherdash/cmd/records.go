package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/weatherdash/internal/domain"
	"github.com/nfrund/weatherdash/internal/forms"
)

var (
	recordForm forms.WeatherForm

	listCity   string
	listSince  string
	listUntil  string
	listFormat string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List and change weather readings",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the readings of a city once",
	Long: `Print the readings of a city, optionally limited to a time window.

Examples:
  weatherdash records list --city Tokyo
  weatherdash records list --city Paris --since 2024-03-01T00:00 --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		filter, err := buildFilter(listCity, listSince, listUntil)
		if err != nil {
			return err
		}

		p, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer p.Close()
		if _, err := requireUser(p); err != nil {
			return err
		}

		records, err := apiClient().FetchRecords(ctx, p.Token(ctx), filter)
		if err != nil {
			return apiError(ctx, p, err)
		}
		return printRecords(cmd.OutOrStdout(), listFormat, recordsSnapshot{City: filter.City, Records: records})
	},
}

var recordsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a reading",
	Example: `  weatherdash records create --city "New York" --temperature 21.5 \
      --feels-like 20 --humidity 40 --pressure 1012 --description "clear"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		body, err := recordForm.CreatePayload()
		if err != nil {
			return err
		}

		p, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer p.Close()
		if _, err := requireUser(p); err != nil {
			return err
		}

		rec, err := apiClient().CreateRecord(ctx, p.Token(ctx), body)
		if err != nil {
			return apiError(ctx, p, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created reading #%d for %s\n", rec.ID, rec.CityName)
		return nil
	},
}

var recordsEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Replace the values of a reading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := forms.RecordID(args[0])
		if err != nil {
			return err
		}
		body, err := recordForm.EditPayload(id)
		if err != nil {
			return err
		}

		p, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer p.Close()
		if _, err := requireUser(p); err != nil {
			return err
		}

		if _, err := apiClient().EditRecord(ctx, p.Token(ctx), body); err != nil {
			return apiError(ctx, p, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated reading #%d\n", id)
		return nil
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a reading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := forms.RecordID(args[0])
		if err != nil {
			return err
		}

		p, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer p.Close()
		if _, err := requireUser(p); err != nil {
			return err
		}

		if err := apiClient().DeleteRecord(ctx, p.Token(ctx), id); err != nil {
			return apiError(ctx, p, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted reading #%d\n", id)
		return nil
	},
}

// timeLayouts are accepted by --since and --until. Values without a zone
// are UTC.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func buildFilter(city, since, until string) (domain.Filter, error) {
	f := domain.DefaultFilter()
	if city = strings.TrimSpace(city); city != "" {
		c, ok := domain.LookupCity(city)
		if !ok {
			return f, fmt.Errorf("unknown city %q (known: %s)", city, strings.Join(domain.CityNames(), ", "))
		}
		f.City = c.Name
	}

	var err error
	if f.Start, err = parseTimeFlag("since", since); err != nil {
		return f, err
	}
	if f.End, err = parseTimeFlag("until", until); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeFlag(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--%s: cannot parse %q as a time", name, raw)
}

func init() {
	for _, c := range []*cobra.Command{recordsCreateCmd, recordsEditCmd} {
		c.Flags().StringVar(&recordForm.CityName, "city", "", "city name, e.g. Paris")
		c.Flags().StringVar(&recordForm.Temperature, "temperature", "", "temperature")
		c.Flags().StringVar(&recordForm.FeelsLike, "feels-like", "", "felt temperature")
		c.Flags().StringVar(&recordForm.Humidity, "humidity", "", "humidity in percent")
		c.Flags().StringVar(&recordForm.Pressure, "pressure", "", "pressure in hPa")
		c.Flags().StringVar(&recordForm.Description, "description", "", "free text")
	}

	recordsListCmd.Flags().StringVar(&listCity, "city", domain.DefaultCity, "city to list")
	recordsListCmd.Flags().StringVar(&listSince, "since", "", "only readings at or after this time")
	recordsListCmd.Flags().StringVar(&listUntil, "until", "", "only readings at or before this time")
	recordsListCmd.Flags().StringVar(&listFormat, "format", "table", "output format: table or json")

	recordsCmd.AddCommand(recordsListCmd, recordsCreateCmd, recordsEditCmd, recordsDeleteCmd)
	rootCmd.AddCommand(recordsCmd)
}
