package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cloudx-io/openmarket/api"
	"github.com/cloudx-io/openmarket/receipt"
)

// ErrVerificationFailed is returned when a receipt is well-formed input but
// does not verify.
var ErrVerificationFailed = errors.New("receipt verification failed")

type verifyOptions struct {
	receipt   string
	publicKey string
	bidID     string
	bidAmount string
	format    string
}

// verifyResult is the outcome of checking one receipt.
type verifyResult struct {
	Valid          bool               `json:"valid"`
	SignatureValid bool               `json:"signature_valid"`
	BidChecked     bool               `json:"bid_checked"`
	BidIncluded    bool               `json:"bid_included"`
	Statement      *receipt.Statement `json:"statement,omitempty"`
	Details        []string           `json:"details"`
}

func (r *verifyResult) IsValid() bool {
	return r.SignatureValid && (!r.BidChecked || r.BidIncluded)
}

func newVerifyReceiptCmd() *cobra.Command {
	var opts verifyOptions
	cmd := &cobra.Command{
		Use:   "verify-receipt",
		Short: "Verify a settlement receipt offline",
		Long: `Verifies the COSE_Sign1 signature on a settlement receipt and, when
--bid-id and --bid-amount are given, that the bid was part of the settled
ledger.

--receipt accepts a file path or inline base64. Files may hold raw COSE bytes
or base64 text. --public-key is a PEM file.

Exit codes:
  0 - receipt verified
  1 - verification failed
  2 - invalid input or runtime error`,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.receipt, "receipt", "", "receipt file path or inline base64")
	cmd.Flags().StringVar(&opts.publicKey, "public-key", "", "PEM-encoded signer public key file")
	cmd.Flags().StringVar(&opts.bidID, "bid-id", "", "bid id to look for in the ledger")
	cmd.Flags().StringVar(&opts.bidAmount, "bid-amount", "", "amount of the bid to look for")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("receipt")
	_ = cmd.MarkFlagRequired("public-key")
	return cmd
}

func runVerify(out io.Writer, opts verifyOptions) error {
	if (opts.bidID == "") != (opts.bidAmount == "") {
		return errors.New("--bid-id and --bid-amount must be given together")
	}
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	raw, err := readReceipt(opts.receipt)
	if err != nil {
		return fmt.Errorf("read receipt: %w", err)
	}
	pemData, err := os.ReadFile(opts.publicKey)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	pub, err := receipt.ParsePublicKeyPEM(pemData)
	if err != nil {
		return err
	}

	result := &verifyResult{}
	statement, err := receipt.Verify(raw, pub)
	if err != nil {
		result.Details = append(result.Details, err.Error())
	} else {
		result.SignatureValid = true
		result.Statement = statement
		result.Details = append(result.Details, fmt.Sprintf("signature valid for order %s (%d bids)", statement.OrderID, len(statement.BidHashes)))

		if opts.bidID != "" {
			amount, err := decimal.NewFromString(opts.bidAmount)
			if err != nil {
				return fmt.Errorf("invalid --bid-amount: %w", err)
			}
			result.BidChecked = true
			result.BidIncluded = statement.IncludesBid(opts.bidID, amount)
			if result.BidIncluded {
				result.Details = append(result.Details, fmt.Sprintf("bid %s at %s is in the ledger", opts.bidID, amount.StringFixed(2)))
			} else {
				result.Details = append(result.Details, fmt.Sprintf("bid %s at %s is NOT in the ledger", opts.bidID, amount.StringFixed(2)))
			}
		}
	}

	result.Valid = result.IsValid()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		outputText(out, result)
	}

	if !result.Valid {
		return ErrVerificationFailed
	}
	return nil
}

// readReceipt accepts a file or inline base64. File contents that decode
// as base64 are decoded, anything else is taken as raw COSE bytes.
func readReceipt(input string) ([]byte, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return api.ReceiptBase64(strings.TrimSpace(input)).Decode()
	}
	if decoded, err := api.ReceiptBase64(strings.TrimSpace(string(data))).Decode(); err == nil {
		return decoded, nil
	}
	return data, nil
}

func outputText(out io.Writer, r *verifyResult) {
	fmt.Fprintln(out, "Settlement Receipt Verifier")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintln(out)
	if s := r.Statement; s != nil {
		fmt.Fprintf(out, "  Order:          %s\n", s.OrderID)
		fmt.Fprintf(out, "  Listing:        %s\n", s.ListingID)
		fmt.Fprintf(out, "  Source:         %s %s\n", s.Source, s.SourceID)
		fmt.Fprintf(out, "  Item price:     %s\n", s.ItemPrice)
		fmt.Fprintf(out, "  Total:          %s\n", s.Total)
		fmt.Fprintf(out, "  Platform fee:   %s\n", s.PlatformFee)
		fmt.Fprintf(out, "  Seller payout:  %s\n", s.SellerPayout)
		fmt.Fprintf(out, "  Ledger digest:  %s\n", s.LedgerDigest)
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "  Signature Valid:  %v\n", r.SignatureValid)
	if r.BidChecked {
		fmt.Fprintf(out, "  Bid Included:     %v\n", r.BidIncluded)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Details:")
	for _, d := range r.Details {
		fmt.Fprintf(out, "  - %s\n", d)
	}
	fmt.Fprintln(out)
	if r.IsValid() {
		fmt.Fprintln(out, "VERIFICATION: PASSED")
	} else {
		fmt.Fprintln(out, "VERIFICATION: FAILED")
	}
}
