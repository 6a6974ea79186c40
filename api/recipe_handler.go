package api

import (
	"net/http"

	"github.com/recipeflow/recipeflow/id"
	"github.com/recipeflow/recipeflow/recipe"
)

type createRecipeRequest struct {
	Scope       string        `json:"scope,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []recipe.Step `json:"steps,omitempty"`
}

func (a *API) listRecipes(w http.ResponseWriter, r *http.Request) {
	list, err := a.eng.Recipes().List(r.Context(), userID(r), recipe.ListOpts{
		Scope:  r.URL.Query().Get("scope"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, list)
}

func (a *API) createRecipe(w http.ResponseWriter, r *http.Request) {
	var req createRecipeRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	rcp, err := a.eng.Recipes().Create(r.Context(), req.Scope, req.Name, req.Description, req.Steps)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, rcp)
}

func (a *API) getRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID, err := id.ParseRecipeID(r.PathValue("recipeID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid recipe ID")
		return
	}

	rcp, err := a.eng.Recipes().Get(r.Context(), userID(r), recipeID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rcp)
}

func (a *API) updateRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID, err := id.ParseRecipeID(r.PathValue("recipeID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid recipe ID")
		return
	}

	var patch recipe.Patch
	if err = decodeJSON(r, &patch); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	rcp, err := a.eng.Recipes().Update(r.Context(), userID(r), recipeID, patch)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rcp)
}

func (a *API) deleteRecipe(w http.ResponseWriter, r *http.Request) {
	recipeID, err := id.ParseRecipeID(r.PathValue("recipeID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid recipe ID")
		return
	}

	if err = a.eng.Recipes().Delete(r.Context(), userID(r), recipeID); err != nil {
		a.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
