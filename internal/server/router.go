package server

import (
	"net/http"

	"bidding-live/internal/subscriptions"
	"bidding-live/internal/wsclient"
	handler "bidding-live/services/bidding/handler"
	"bidding-live/services/bidding/helpers"
	"bidding-live/utils"

	"github.com/gin-gonic/gin"
)

// Deps is everything the HTTP surface needs from the rest of the process
type Deps struct {
	Service   handler.BiddingServiceInterface
	Directory *subscriptions.Directory
	Tokens    helpers.TokenParser
	Stream    wsclient.Options
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(deps.Service)
	streamHandler := handler.NewStreamHandler(deps.Service, deps.Directory, deps.Tokens, deps.Stream)
	requireAuth := RequireAuth(deps.Tokens)

	router.GET("/health", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"topics": deps.Directory.Topics()}, "ok")
	})

	auctions := router.Group("/auctions")
	{
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)

		auctions.POST("", requireAuth, biddingHandler.CreateAuctionHandler)
		auctions.POST("/:auction_id/activate", requireAuth, biddingHandler.ActivateAuctionHandler)
		auctions.POST("/:auction_id/cancel", requireAuth, biddingHandler.CancelAuctionHandler)
		auctions.POST("/:auction_id/bids", requireAuth, biddingHandler.PlaceBidHandler)
		auctions.POST("/:auction_id/accept/:bid_id", requireAuth, biddingHandler.AcceptBidHandler)
	}

	me := router.Group("/me", requireAuth)
	{
		me.GET("/bids", biddingHandler.GetMyBidsHandler)
		me.GET("/bids/active", biddingHandler.GetMyActiveBidsHandler)
		me.GET("/auctions", biddingHandler.GetMyAuctionsHandler)
	}

	ws := router.Group("/ws")
	{
		ws.GET("", streamHandler.UserStreamHandler)
		ws.GET("/auctions/:auction_id", streamHandler.WatchAuctionHandler)
	}

	return router
}
