package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	paymentmemory "github.com/lxpay/receipt-store/payment/memory"
	"github.com/lxpay/receipt-store/receipt"
	"github.com/lxpay/receipt-store/receipt/apple"
	"github.com/lxpay/receipt-store/receipt/cache"
	"github.com/lxpay/receipt-store/receipt/sqlite"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}

	path := os.Getenv("RECEIPT_DB_PATH")
	if path == "" {
		path, err = sqlite.DefaultPath("receipt-store")
		if err != nil {
			log.Fatal("Failed to construct database path:", err)
		}
	}

	store, err := sqlite.Open(sqlite.Config{
		Path:       path,
		Passphrase: os.Getenv("RECEIPT_DB_PASSPHRASE"),
	})
	if err != nil {
		log.Fatal("Failed to open receipt store:", err)
	}
	defer store.Close()

	queue := paymentmemory.NewQueue()
	defer queue.Close()

	validator := cache.NewValidator(apple.NewValidator(os.Getenv("RECEIPT_BUNDLE_ID")), time.Hour)

	svc := receipt.NewService(logger, store, queue, validator)
	defer svc.Close()

	family := "pro"
	if len(os.Args) > 1 {
		family = os.Args[1]
	}

	row, _, err := svc.LatestActiveSubscription(context.Background(), family)
	if errors.Is(err, receipt.ErrNoSubscription) {
		fmt.Println("No active subscription for family:", family)
		return
	}
	if err != nil {
		log.Fatal("Failed to resolve subscription:", err)
	}

	fmt.Printf("Active subscription: product=%s transaction=%s expires=%s\n",
		row.ProductID, row.TransactionID, row.ExpiresDate.Format(time.RFC3339))
}
