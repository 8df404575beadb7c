package echoapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/somahq/soma/core/user"
)

func Test_userApi_login(t *testing.T) {
	db.Reset()

	createUser(t, "Active User", "activeuser", "active@test.cd", "secret", []string{user.RoleStudent}, true)
	createUser(t, "Lazy User", "lazyuser", "lazy@test.cd", "secret", []string{user.RoleStudent}, false)

	body := func(uname, pwd string) []byte {
		return []byte(`{"username": "` + uname + `", "password": "` + pwd + `"}`)
	}

	tests := []httpTest{
		{
			name: "login with username", body: body("activeuser", "secret"),
			wantCode: http.StatusOK,
		},
		{
			name: "login with email", body: body("active@test.cd", "secret"),
			wantCode: http.StatusOK,
		},
		{
			name: "unknown user", body: body("ghost", "secret"),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: body("activeuser", "nope"),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: body("lazyuser", "secret"),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK {
				var res LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("unmarshalling LoginResponse: %v", err)
				}
				if res.Token == "" {
					t.Error("expected a token")
				}
			} else if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			}
		})
	}
}

func Test_userApi_query(t *testing.T) {
	db.Reset()

	path := func(search string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	t1 := now.Add(1 * time.Hour)
	t2 := now.Add(2 * time.Hour)

	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := createUser(t, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, t1)
	admin := createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true, t2)
	naughty := createUser(t, "N Dog", "ndog12", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	adminToken := getToken(t, admin)
	empty := marshallList(t)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "Get all", path: "/v1/users", token: adminToken, wantCode: http.StatusOK,
			wantData: marshallList(t, admin, teacher, naughty, student),
		},
		{name: "search (unknown)", path: path("lol", nil), token: adminToken, wantCode: http.StatusOK, wantData: empty},
		{
			name: "search=hero", path: path("hero", nil), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, student),
		},
		{
			name: "role=admin:", path: path("", nil, user.RoleAdmin), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, admin),
		},
		{
			name: "role=student:", path: path("", nil, user.RoleStudent), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, naughty, student),
		},
		{
			name: "is_active=false", path: path("", bPtr(false)), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, naughty),
		},
		{
			name: "combo", path: path("dog", bPtr(false), user.RoleStudent), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, naughty),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	db.Reset()

	admin := createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	principal := createUser(t, "Principal", "princip", "princip@test.cd", "", []string{user.RoleAdminPrincipal}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)

	body := func(uname, email string, roles ...string) []byte {
		data, _ := json.Marshal(user.NewUser{
			Name:            "New User",
			Username:        uname,
			Email:           email,
			Password:        "secret",
			PasswordConfirm: "secret",
			Roles:           roles,
		})
		return data
	}

	tests := []httpTest{
		{
			name: "Admin required", token: getToken(t, student), body: body("newstudent", "new@test.cd"),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "create student", token: getToken(t, admin), body: body("newstudent", "new@test.cd", user.RoleStudent),
			wantCode: http.StatusCreated,
		},
		{
			name: "duplicate username", token: getToken(t, admin), body: body("newstudent", "other@test.cd", user.RoleStudent),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "cannot grant above own role", token: getToken(t, admin), body: body("bigshot", "big@test.cd", user.RoleAdminOwner),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{
			name: "principal grants admin", token: getToken(t, principal), body: body("smallshot", "small@test.cd", user.RoleAdmin),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	db.Reset()

	admin := createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := createUser(t, "Other", "otherstu", "other@test.cd", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{
			name: "self", path: "/v1/users/" + student.ID, token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marshallObj(t, student),
		},
		{
			name: "admin reads anyone", path: "/v1/users/" + student.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marshallObj(t, student),
		},
		{
			name: "peer is hidden", path: "/v1/users/" + other.ID, token: getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "unknown ID", path: "/v1/users/deadbeef", token: getToken(t, admin),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_update(t *testing.T) {
	db.Reset()

	admin := createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)

	t.Run("self rename", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, student),
			[]byte(`{"name": "Super Hero"}`))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling user: %v", err)
		}
		if usr.Name != "Super Hero" {
			t.Errorf("name = %q; want %q", usr.Name, "Super Hero")
		}
	})

	t.Run("non-admin cannot touch roles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, student),
			[]byte(`{"roles": ["admin:"]}`))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("admin deactivates", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, admin),
			[]byte(`{"is_active": false}`))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling user: %v", err)
		}
		if usr.IsActive {
			t.Error("expected user to be deactivated")
		}
	})
}

func Test_userApi_destroy(t *testing.T) {
	db.Reset()

	admin := createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)

	t.Run("no suicide", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("admin deletes", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+student.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; want %v", rec.Code, http.StatusNoContent)
		}
		if _, err := usrSvc.GetByID(t.Context(), student.ID); err != user.ErrNotFound {
			t.Errorf("expected ErrNotFound; got %v", err)
		}
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	db.Reset()

	student := createUser(t, "Hero", "herostu", "hero@test.cd", "", []string{user.RoleStudent}, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, student))
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}
	var res LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshalling LoginResponse: %v", err)
	}
	if res.Token == "" {
		t.Error("expected a refreshed token")
	}
}
