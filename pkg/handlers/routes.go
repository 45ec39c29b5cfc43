package handlers

import (
	"github.com/gorilla/mux"
)

func AddHandleFuncs(r *mux.Router, u *UserHandler, p *PostHandler, v *VoteHandler) {
	r.HandleFunc("/api/health", Health).Methods("GET")

	r.HandleFunc("/api/register", u.Register).Methods("POST")
	r.HandleFunc("/api/login", u.Login).Methods("POST")
	r.HandleFunc("/api/logout", u.Logout).Methods("POST")

	r.HandleFunc("/api/posts", p.AddPost).Methods("POST")
	r.HandleFunc("/api/posts/", p.GetAllPosts).Methods("GET")
	r.HandleFunc("/api/posts/{category}", p.GetPostsWithCategory).Methods("GET")
	r.HandleFunc("/api/post/{id}", p.GetPost).Methods("GET")
	r.HandleFunc("/api/post/{id}", p.AddComment).Methods("POST")
	r.HandleFunc("/api/post/{id}", p.DeletePost).Methods("DELETE")
	r.HandleFunc("/api/post/{id}/upvote", p.Upvote).Methods("GET")
	r.HandleFunc("/api/post/{id}/downvote", p.Downvote).Methods("GET")
	r.HandleFunc("/api/post/{id}/unvote", p.Unvote).Methods("GET")
	r.HandleFunc("/api/post/{id}/{commentID}", p.DeleteComment).Methods("DELETE")

	r.HandleFunc("/api/{kind}/{id}/vote", v.Vote).Methods("POST")

	r.HandleFunc("/api/user/{login}", p.GetUserPosts).Methods("GET")
	r.HandleFunc("/api/user/{login}/karma", v.Karma).Methods("GET")
}
