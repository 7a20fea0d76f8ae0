// Package testutil provides a test HTTP server component backed by
// httptest.Server.
//
//	rdb := redistest.NewComponent()
//	testutil.T(t).Setup(rdb)
//	srv := servertest.NewComponent(servertest.WithRedis(rdb.Registry()))
//	testutil.T(t).Setup(srv)
//
//	srv.Engine().GET("/hello", func(c *gin.Context) {
//	    v, _ := middleware.RedisClient(c).Get(c.Request.Context(), "greeting")
//	    c.String(http.StatusOK, v)
//	})
//	resp, _ := http.Get(srv.BaseURL() + "/hello")
package testutil
